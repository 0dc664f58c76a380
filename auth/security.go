package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
	"github.com/golang-jwt/jwt/v5"
)

// SecurityConfig is the immutable configuration describing how tokens from
// an external identity provider are validated when OIDC discovery is not
// used.
//
// A zero value is invalid; populate required fields then call Validate.
type SecurityConfig struct {
	Issuer      string
	Audiences   []string
	AllowedAlgs []string // default: ["RS256"] if empty
	JWKSURL     string

	Leeway     time.Duration // clock skew tolerance (default 60s)
	RolesClaim string        // default "roles"
}

// Normalize fills defaults without mutating caller copies elsewhere.
func (c *SecurityConfig) Normalize() {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
	if c.RolesClaim == "" {
		c.RolesClaim = "roles"
	}
}

// Validate returns an error if required invariants are not met.
func (c SecurityConfig) Validate() error {
	if c.Issuer == "" {
		return errors.New("security: issuer required")
	}
	if len(c.Audiences) == 0 {
		return errors.New("security: at least one audience required")
	}
	for _, a := range c.Audiences {
		if a == "" {
			return errors.New("security: empty audience entry")
		}
	}
	return nil
}

// Copy returns a deep copy safe for mutation by the caller.
func (c SecurityConfig) Copy() SecurityConfig {
	dup := c
	dup.Audiences = append([]string(nil), c.Audiences...)
	dup.AllowedAlgs = append([]string(nil), c.AllowedAlgs...)
	return dup
}

func (c SecurityConfig) jwtConfig() *jwtauth.Config {
	return &jwtauth.Config{
		Issuer:            c.Issuer,
		ExpectedAudiences: append([]string(nil), c.Audiences...),
		AllowedAlgs:       append([]string(nil), c.AllowedAlgs...),
		Leeway:            c.Leeway,
		RolesClaim:        c.RolesClaim,
	}
}

// NewManualJWTAuthenticator constructs an identity provider token
// authenticator from this configuration without performing OIDC discovery.
// It expects c.Issuer, at least one audience, and c.JWKSURL.
func (c SecurityConfig) NewManualJWTAuthenticator(ctx context.Context) (Authenticator, error) {
	cc := c.Copy()
	cc.Normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cc.JWKSURL == "" {
		return nil, errors.New("security: JWKSURL required for manual JWT authenticator")
	}
	a, err := jwtauth.NewStatic(ctx, cc.jwtConfig(), cc.JWKSURL)
	if err != nil {
		return nil, err
	}
	return &adapter{a: a, log: slog.Default()}, nil
}

// NewKeyfuncAuthenticator is like NewManualJWTAuthenticator but resolves
// verification keys with kf, e.g. a fixed public key in tests or air-gapped
// deployments.
func (c SecurityConfig) NewKeyfuncAuthenticator(kf jwt.Keyfunc) (Authenticator, error) {
	cc := c.Copy()
	cc.Normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	a, err := jwtauth.NewWithKeyfunc(cc.jwtConfig(), kf)
	if err != nil {
		return nil, err
	}
	return &adapter{a: a, log: slog.Default()}, nil
}
