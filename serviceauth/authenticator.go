package serviceauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/caseygil/attack-workbench-rest-api/auth"
	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
)

// ErrUnknownAccount is reported, wrapped in auth.ErrUnauthorized, when a
// validly signed token names a service no longer in the registry.
var ErrUnknownAccount = errors.New("serviceauth: token subject is not a registered service")

type tokenAuthenticator struct {
	registry *Registry
	tokens   *jwtauth.ServiceTokens
}

// NewAuthenticator returns an auth.Authenticator that accepts service tokens
// minted by tokens and resolves their subject's roles from registry.
func NewAuthenticator(registry *Registry, tokens *jwtauth.ServiceTokens) auth.Authenticator {
	return &tokenAuthenticator{registry: registry, tokens: tokens}
}

func (a *tokenAuthenticator) CheckAuthentication(_ context.Context, tok string) (*auth.Principal, error) {
	claims, err := a.tokens.Verify(tok)
	if err != nil {
		return nil, errors.Join(auth.ErrUnauthorized, err)
	}
	acct, ok := a.registry.Lookup(claims.Subject)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", auth.ErrUnauthorized, ErrUnknownAccount, claims.Subject)
	}
	return &auth.Principal{
		Kind:     auth.KindService,
		ID:       acct.Name,
		Roles:    acct.Roles,
		Strategy: auth.StrategyServiceToken,
	}, nil
}
