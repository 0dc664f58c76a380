package serviceauth

import (
	"errors"
	"fmt"

	"github.com/caseygil/attack-workbench-rest-api/auth"
)

// Account is a registered service identity.
type Account struct {
	Name   string
	Secret []byte
	Roles  []auth.Role
}

// Registry is an immutable, case-sensitive index of service accounts.
type Registry struct {
	accounts map[string]Account
}

// NewRegistry builds a Registry. Names must be non-empty and unique, secrets
// non-empty, and roles drawn from the known set.
func NewRegistry(accounts ...Account) (*Registry, error) {
	r := &Registry{accounts: make(map[string]Account, len(accounts))}
	var errs []error
	for i, a := range accounts {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("account %d: name is required", i))
			continue
		}
		if _, dup := r.accounts[a.Name]; dup {
			errs = append(errs, fmt.Errorf("account %q: duplicate name", a.Name))
			continue
		}
		if len(a.Secret) == 0 {
			errs = append(errs, fmt.Errorf("account %q: secret is required", a.Name))
			continue
		}
		for _, role := range a.Roles {
			if !role.Valid() {
				errs = append(errs, fmt.Errorf("account %q: %w: %q", a.Name, auth.ErrUnknownRole, role))
			}
		}
		r.accounts[a.Name] = Account{
			Name:   a.Name,
			Secret: append([]byte(nil), a.Secret...),
			Roles:  append([]auth.Role(nil), a.Roles...),
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the account registered under name. The returned value
// shares no memory with the registry.
func (r *Registry) Lookup(name string) (Account, bool) {
	a, ok := r.accounts[name]
	if !ok {
		return Account{}, false
	}
	a.Secret = append([]byte(nil), a.Secret...)
	a.Roles = append([]auth.Role(nil), a.Roles...)
	return a, true
}

// Len reports the number of registered accounts.
func (r *Registry) Len() int { return len(r.accounts) }
