package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

type staticAuthenticator struct {
	cfg     *Config
	keyfunc jwt.Keyfunc
}

// NewStatic constructs an authenticator that validates JWT access tokens
// against a statically configured issuer, audiences and JWKS URI (no discovery).
func NewStatic(ctx context.Context, cfg *Config, jwksURI string) (Authenticator, error) {
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	if err := normalize(cfg); err != nil {
		return nil, err
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return &staticAuthenticator{cfg: cfg, keyfunc: restrictAlgs(cfg.AllowedAlgs, kf.Keyfunc)}, nil
}

// NewWithKeyfunc is like NewStatic but resolves verification keys through a
// caller-supplied key function instead of fetching a JWKS document.
func NewWithKeyfunc(cfg *Config, kf jwt.Keyfunc) (Authenticator, error) {
	if kf == nil {
		return nil, errors.New("keyfunc required")
	}
	if err := normalize(cfg); err != nil {
		return nil, err
	}
	return &staticAuthenticator{cfg: cfg, keyfunc: restrictAlgs(cfg.AllowedAlgs, kf)}, nil
}

func normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return errors.New("issuer is required")
	}
	if len(cfg.ExpectedAudiences) == 0 {
		return errors.New("at least one expected audience required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 60 * time.Second
	}
	if cfg.RolesClaim == "" {
		cfg.RolesClaim = "roles"
	}
	return nil
}

// CheckAuthentication implements the Authenticator interface (shared contract).
func (a *staticAuthenticator) CheckAuthentication(ctx context.Context, tok string) (*UserInfo, error) {
	return validate(tok, a.cfg.Issuer, a.cfg, a.keyfunc)
}

var _ Authenticator = (*staticAuthenticator)(nil)
