package httpauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caseygil/attack-workbench-rest-api/auth"
	"github.com/caseygil/attack-workbench-rest-api/internal/logctx"
)

// SessionSource resolves the session-derived identity of a request, if any.
// Implementations must not consult the Authorization header.
type SessionSource interface {
	SessionPrincipal(r *http.Request) (*auth.Principal, bool)
}

// SessionSourceFunc adapts a function to SessionSource.
type SessionSourceFunc func(r *http.Request) (*auth.Principal, bool)

func (f SessionSourceFunc) SessionPrincipal(r *http.Request) (*auth.Principal, bool) { return f(r) }

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithBearer appends bearer token verifiers. They are tried in order and the
// first success wins. With none configured, every request carrying a
// credential header is rejected.
func WithBearer(verifiers ...auth.Authenticator) Option {
	return func(a *Authenticator) {
		for _, v := range verifiers {
			if v != nil {
				a.bearer = append(a.bearer, v)
			}
		}
	}
}

// WithSessionSource enables the session strategy.
func WithSessionSource(s SessionSource) Option {
	return func(a *Authenticator) { a.sessions = s }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges. Empty
// (the default) omits the attribute.
func WithRealm(realm string) Option {
	return func(a *Authenticator) { a.realm = realm }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Authenticator) { a.log = l }
}

// Authenticator resolves the caller of each request to an auth.Principal.
type Authenticator struct {
	bearer   []auth.Authenticator
	sessions SessionSource
	realm    string
	log      *slog.Logger
}

// NewAuthenticator creates an Authenticator. Configuration is fixed after
// construction.
func NewAuthenticator(opts ...Option) *Authenticator {
	a := &Authenticator{log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type candidateKind int

const (
	candidateNone candidateKind = iota
	candidateBearer
	candidateSession
)

// candidate is the strategy chosen for a request. Exactly one of its
// payload fields is meaningful, according to kind.
type candidate struct {
	kind       candidateKind
	credential string // raw Authorization header value, for candidateBearer
	session    *auth.Principal
}

// classify picks the single strategy that applies to r. A credential header
// always selects the bearer path when any bearer verifier is enabled, and
// never falls through to the session path.
func (a *Authenticator) classify(r *http.Request) candidate {
	if h := r.Header.Get(authorizationHeader); h != "" {
		if len(a.bearer) > 0 {
			return candidate{kind: candidateBearer, credential: h}
		}
		return candidate{kind: candidateNone}
	}
	if a.sessions != nil {
		if p, ok := a.sessions.SessionPrincipal(r); ok && p != nil {
			return candidate{kind: candidateSession, session: p}
		}
	}
	return candidate{kind: candidateNone}
}

// Middleware authenticates the request and attaches the principal to its
// context, or responds 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var p *auth.Principal
		switch c := a.classify(r); c.kind {
		case candidateBearer:
			p = a.checkBearer(w, r, c.credential)
			if p == nil {
				return
			}
		case candidateSession:
			p = c.session
		default:
			if r.Header.Get(authorizationHeader) != "" {
				a.log.InfoContext(ctx, "authn.check.fail", slog.String("err", "bearer authentication is not enabled"))
				a.unauthorized(w, map[string]string{"error": "invalid_token", "error_description": "bearer authentication is not enabled"})
				return
			}
			// RFC 6750 §3.1: no error code when no credentials were offered.
			a.log.InfoContext(ctx, "authn.check.missing")
			a.unauthorized(w, nil)
			return
		}

		ctx = auth.WithPrincipal(ctx, p)
		ctx = logctx.WithPrincipalData(ctx, &logctx.PrincipalData{Kind: string(p.Kind), ID: p.ID, Strategy: string(p.Strategy)})
		a.log.DebugContext(ctx, "authn.check.ok")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) checkBearer(w http.ResponseWriter, r *http.Request, header string) *auth.Principal {
	ctx := r.Context()

	const bearerPrefix = "bearer "
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		a.log.InfoContext(ctx, "authn.check.invalid", slog.String("err", "malformed bearer authorization header"))
		a.unauthorized(w, map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"})
		return nil
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	if tok == "" {
		a.log.InfoContext(ctx, "authn.check.invalid", slog.String("err", "empty bearer token"))
		a.unauthorized(w, map[string]string{"error": "invalid_request", "error_description": "empty bearer token"})
		return nil
	}

	var errs []error
	for _, v := range a.bearer {
		p, err := v.CheckAuthentication(ctx, tok)
		if err == nil && p != nil {
			return p
		}
		if err == nil {
			err = auth.ErrUnauthorized
		}
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	for _, e := range errs {
		if !errors.Is(e, auth.ErrUnauthorized) {
			a.log.ErrorContext(ctx, "authn.check.error", slog.String("err", err.Error()))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "authentication failed")
			return nil
		}
	}

	// Failure detail stays in the log; the client sees one generic reason.
	a.log.InfoContext(ctx, "authn.check.fail", slog.String("err", err.Error()))
	a.unauthorized(w, map[string]string{"error": "invalid_token", "error_description": "the access token is invalid or expired"})
	return nil
}

func (a *Authenticator) unauthorized(w http.ResponseWriter, params map[string]string) {
	w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(a.realm, params))
	msg := "authentication required"
	if d, ok := params["error_description"]; ok {
		msg = d
	}
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", msg)
}
