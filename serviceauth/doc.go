// Package serviceauth implements the challenge/response handshake by which
// a registered service account obtains a short-lived bearer token.
//
// The handshake has two steps:
//
//  1. The service asks for a challenge. Service.CreateChallenge looks the
//     name up in the Registry, draws a fresh nonce, stores it in the
//     challenge.Cache for the challenge TTL, and returns it. A new request
//     replaces any challenge still outstanding for that service.
//  2. The service answers with hex(HMAC-SHA256(key=secret, data=nonce)).
//     Service.RedeemChallenge removes the challenge from the cache before
//     checking the proof, so every challenge is usable exactly once whether
//     the proof is right or wrong. A correct proof yields a signed token
//     valid for the configured token timeout.
//
// Tokens are self-validating: NewAuthenticator checks them on later requests
// without consulting the cache, and maps the subject back to the account's
// roles.
//
// Example:
//
//	reg, _ := serviceauth.NewRegistry(serviceauth.Account{Name: "svc-A", Secret: []byte("k1"), Roles: []auth.Role{auth.RoleEditor}})
//	tokens, _ := jwtauth.NewServiceTokens(signingSecret, "attack-workbench")
//	cache, _ := memory.New()
//	svc, _ := serviceauth.New(reg, cache, tokens)
//
//	nonce, _ := svc.CreateChallenge(ctx, "svc-A")
//	grant, _ := svc.RedeemChallenge(ctx, "svc-A", serviceauth.ComputeProof(nonce, []byte("k1")))
package serviceauth
