// Package auth defines the identity vocabulary shared by the authentication
// and authorization layers: the Principal attached to each request, the
// closed set of Roles, and the Authenticator contract implemented by every
// bearer-token strategy.
//
// Two bearer strategies exist. Service accounts obtain a short-lived HS256
// token through the challenge/response handshake in package serviceauth.
// Users of an external OpenID Connect provider present that provider's JWT
// access tokens, validated by the authenticator returned from
// NewFromDiscovery or SecurityConfig.NewManualJWTAuthenticator.
//
// Example:
//
//	ctx := context.Background()
//	authn, err := auth.NewFromDiscovery(ctx, "https://issuer.example", "https://workbench.example/api",
//	    auth.WithRolesClaim("workbench_roles"),
//	)
//	if err != nil { log.Fatal(err) }
//
//	p, err := authn.CheckAuthentication(r.Context(), bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* map to 401 challenge */ }
//	if p.HasRole(auth.RoleAdmin) { ... }
//
// # Roles
//
// Roles are a small closed enumeration (admin, team_lead, editor, visitor).
// ParseRole rejects anything else, so configuration naming an unknown role
// fails at startup rather than silently granting nothing.
//
// # Errors
//
// ErrUnauthorized signals that a credential is invalid (signature, expiry,
// audience, etc.). ErrForbidden signals successful authentication without a
// required role. Transports map the former to 401 and the latter to 403.
package auth
