// Package session encodes the identity established by the interactive login
// flow into a signed cookie and reads it back on later requests.
//
// The login flow itself lives outside this module; it calls Codec.SetCookie
// once the user is known. The request authenticator consumes the cookie via
// Codec.SessionPrincipal.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/auth"
)

const (
	// DefaultCookieName names the session cookie.
	DefaultCookieName = "workbench_session"
	// DefaultTTL is the lifetime of an issued session.
	DefaultTTL = 8 * time.Hour
)

var (
	// ErrInvalidSession indicates a cookie that does not verify or decode.
	ErrInvalidSession = errors.New("session: invalid session")
	// ErrSessionExpired indicates a correctly signed but expired session.
	ErrSessionExpired = errors.New("session: session expired")
)

// claims is the signed cookie payload.
type claims struct {
	Subject  string   `json:"sub"`
	Roles    []string `json:"roles,omitempty"`
	IssuedAt int64    `json:"iat"`
	Expiry   int64    `json:"exp"`
}

// Option configures a Codec.
type Option func(*Codec)

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(c *Codec) { c.cookieName = name }
}

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *Codec) { c.ttl = d }
}

// WithSecureCookie marks issued cookies Secure. Enable behind TLS.
func WithSecureCookie(secure bool) Option {
	return func(c *Codec) { c.secure = secure }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) { c.log = l }
}

// Codec issues and verifies session cookies.
type Codec struct {
	keys       *KeyRing
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
	log        *slog.Logger
}

// NewCodec returns a Codec signing with keys' active key.
func NewCodec(keys *KeyRing, opts ...Option) (*Codec, error) {
	if keys == nil {
		return nil, errors.New("key ring is required")
	}
	if keys.ActiveKID() == "" {
		return nil, errors.New("key ring has no active key")
	}
	c := &Codec{
		keys:       keys,
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CookieName returns the name of the session cookie.
func (c *Codec) CookieName() string { return c.cookieName }

// Issue encodes a user session for subject with roles.
func (c *Codec) Issue(subject string, roles []auth.Role) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	now := c.now()
	exp := now.Add(c.ttl)
	cl := claims{Subject: subject, IssuedAt: now.Unix(), Expiry: exp.Unix()}
	for _, r := range roles {
		cl.Roles = append(cl.Roles, string(r))
	}
	payload, err := json.Marshal(cl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal session: %w", err)
	}
	tok, err := c.keys.Sign(payload)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, exp, nil
}

// Verify decodes tok into a session principal.
func (c *Codec) Verify(tok string) (*auth.Principal, error) {
	payload, _, err := c.keys.Verify(tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	var cl claims
	if err := json.Unmarshal(payload, &cl); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if cl.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidSession)
	}
	if !c.now().Before(time.Unix(cl.Expiry, 0)) {
		return nil, ErrSessionExpired
	}
	roles, err := auth.ParseRoles(cl.Roles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	return &auth.Principal{Kind: auth.KindUser, ID: cl.Subject, Roles: roles, Strategy: auth.StrategySession}, nil
}

// SessionPrincipal returns the principal carried by r's session cookie. It
// never looks at the Authorization header.
func (c *Codec) SessionPrincipal(r *http.Request) (*auth.Principal, bool) {
	ck, err := r.Cookie(c.cookieName)
	if err != nil || ck.Value == "" {
		return nil, false
	}
	p, err := c.Verify(ck.Value)
	if err != nil {
		c.log.InfoContext(r.Context(), "session.cookie.reject", slog.String("err", err.Error()))
		return nil, false
	}
	return p, true
}

// SetCookie issues a session for subject and writes it to w.
func (c *Codec) SetCookie(w http.ResponseWriter, subject string, roles []auth.Role) error {
	tok, exp, err := c.Issue(subject, roles)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    tok,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie on the client.
func (c *Codec) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
