package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
)

// AccessTokenAuthOption configures optional aspects of the external identity
// provider authenticator (algorithms, leeway, role claim).
type AccessTokenAuthOption func(*jwtauth.Config)

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) {
		c.AllowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// WithRolesClaim names the token claim holding the caller's roles. Defaults to "roles".
func WithRolesClaim(claim string) AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.RolesClaim = claim }
}

// WithAccessTokenType requires the RFC 9068 "at+jwt" typ header.
func WithAccessTokenType() AccessTokenAuthOption {
	return func(c *jwtauth.Config) { c.RequireAccessTokenType = true }
}

// NewFromDiscovery returns an Authenticator that verifies JWT access tokens
// from an external identity provider located via OpenID Connect discovery.
//
// Required:
//   - issuer:   authorization server issuer URL
//   - audience: expected audience ("aud") claim, typically the public API URL
func NewFromDiscovery(ctx context.Context, issuer string, audience string, opts ...AccessTokenAuthOption) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	cfg.ExpectedAudiences = []string{audience}
	for _, opt := range opts {
		opt(cfg)
	}
	if audience == "" {
		return nil, errors.New("audience is required")
	}
	internal, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal, log: slog.Default()}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a   jwtauth.Authenticator
	log *slog.Logger
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (*Principal, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, jwtauth.ErrUnauthorized) {
			return nil, errors.Join(ErrUnauthorized, err)
		}
		return nil, err
	}

	// Unknown role names from the provider grant nothing.
	roles := make([]Role, 0, len(ui.RoleNames))
	for _, name := range ui.RoleNames {
		r, err := ParseRole(name)
		if err != nil {
			ad.log.DebugContext(ctx, "authn.oidc.role.ignored", slog.String("role", name), slog.String("sub", ui.Subject))
			continue
		}
		roles = append(roles, r)
	}
	return &Principal{Kind: KindUser, ID: ui.Subject, Roles: roles, Strategy: StrategyOIDC}, nil
}
