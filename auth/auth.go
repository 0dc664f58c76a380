package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden indicates the caller authenticated but lacks a required role.
var ErrForbidden = errors.New("forbidden")

// ErrUnknownRole is returned when a role name is not part of the closed role set.
var ErrUnknownRole = errors.New("unknown role")

// Role is a named permission tier checked before protected operations run.
// The set of roles is closed; see Roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleTeamLead Role = "team_lead"
	RoleEditor   Role = "editor"
	RoleVisitor  Role = "visitor"
)

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleTeamLead, RoleEditor, RoleVisitor}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// ParseRole converts a configured role name into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// ParseRoles converts a list of configured role names, failing on the first unknown one.
func ParseRoles(names []string) ([]Role, error) {
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Kind distinguishes service identities from session-derived user identities.
type Kind string

const (
	KindService Kind = "service"
	KindUser    Kind = "user"
)

// Strategy names the authentication strategy that produced a Principal.
type Strategy string

const (
	StrategyServiceToken Strategy = "service-token"
	StrategyOIDC         Strategy = "oidc-bearer"
	StrategySession      Strategy = "session"
)

// Principal is the authenticated identity attached to a request. It is built
// once at authentication time and must be treated as read-only afterwards.
type Principal struct {
	Kind     Kind
	ID       string
	Roles    []Role
	Strategy Strategy
}

// HasRole reports whether the principal holds role r.
func (p *Principal) HasRole(r Role) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, r)
}

// Authorize checks that p holds at least one of roles. It returns
// ErrUnauthorized for a nil principal and ErrForbidden when no role matches.
func Authorize(p *Principal, roles ...Role) error {
	if p == nil {
		return ErrUnauthorized
	}
	for _, r := range roles {
		if p.HasRole(r) {
			return nil
		}
	}
	return ErrForbidden
}

// Authenticator validates bearer tokens and returns the associated principal.
// It should return an error wrapping ErrUnauthorized for invalid credentials;
// any other error is treated as an internal failure.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (*Principal, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, tok string) (*Principal, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (*Principal, error) {
	return f(ctx, tok)
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached to ctx, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
