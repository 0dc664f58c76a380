// Package httpauth exposes the service handshake over HTTP and guards
// protected routes.
//
// Authenticator.Middleware decides, once per request, which single
// authentication strategy applies:
//
//   - a request carrying an Authorization header is a bearer request and is
//     checked only by the configured bearer verifiers (service tokens first,
//     then an external identity provider);
//   - a request without one is a session request when the session source
//     recognises it;
//   - anything else is unauthenticated.
//
// The strategies never mix: a bearer request whose token fails is rejected
// even if it also carries a valid session cookie. On success the resolved
// auth.Principal is attached to the request context, where RequireRole
// reads it.
//
// Routes mounts the challenge and token endpoints that service accounts use
// to obtain bearer tokens.
//
// Example:
//
//	authn := httpauth.NewAuthenticator(
//		httpauth.WithBearer(serviceauth.NewAuthenticator(reg, tokens)),
//		httpauth.WithSessionSource(codec),
//	)
//	mux.Handle("/api/authn/service/", httpauth.Routes(svc))
//	mux.Handle("GET /api/config/system", authn.Middleware(httpauth.RequireRole(auth.RoleAdmin)(systemConfig)))
package httpauth
