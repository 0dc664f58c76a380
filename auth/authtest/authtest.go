// Package authtest provides fake authenticators for tests and local development.
package authtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/caseygil/attack-workbench-rest-api/auth"
)

// Static is an auth.Authenticator that maps fixed token strings to principals.
// Unknown tokens fail with auth.ErrUnauthorized.
type Static struct {
	mu     sync.RWMutex
	tokens map[string]*auth.Principal
	calls  int
}

// NewStatic creates an empty Static authenticator.
func NewStatic() *Static {
	return &Static{tokens: make(map[string]*auth.Principal)}
}

// Add registers tok as a credential for p and returns the receiver for chaining.
func (s *Static) Add(tok string, p *auth.Principal) *Static {
	s.mu.Lock()
	s.tokens[tok] = p
	s.mu.Unlock()
	return s
}

// Calls reports how many times CheckAuthentication has been invoked.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// CheckAuthentication implements auth.Authenticator.
func (s *Static) CheckAuthentication(ctx context.Context, tok string) (*auth.Principal, error) {
	s.mu.Lock()
	s.calls++
	p, ok := s.tokens[tok]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown test token", auth.ErrUnauthorized)
	}
	return p, nil
}

var _ auth.Authenticator = (*Static)(nil)
