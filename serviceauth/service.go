package serviceauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/challenge"
	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
	"github.com/caseygil/attack-workbench-rest-api/internal/nonce"
)

const (
	// DefaultChallengeTTL is how long an issued challenge may be redeemed.
	DefaultChallengeTTL = 60 * time.Second
	// DefaultTokenTimeout is the lifetime of an issued bearer token.
	DefaultTokenTimeout = 300 * time.Second
)

var (
	// ErrServiceNotFound indicates the service name is not registered.
	ErrServiceNotFound = errors.New("serviceauth: service not found")
	// ErrChallengeNotFound indicates no live challenge exists for the
	// service: never requested, already redeemed, replaced, or expired.
	ErrChallengeNotFound = errors.New("serviceauth: challenge not found")
	// ErrInvalidChallengeHash indicates the submitted proof did not match.
	// The challenge has been consumed regardless.
	ErrInvalidChallengeHash = errors.New("serviceauth: invalid challenge hash")
)

// TokenGrant is the result of a successful redemption.
type TokenGrant struct {
	Token     string
	ExpiresIn int // seconds
	ExpiresAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithChallengeTTL sets how long a challenge stays redeemable.
func WithChallengeTTL(d time.Duration) Option {
	return func(s *Service) { s.challengeTTL = d }
}

// WithTokenTimeout sets the lifetime of issued tokens.
func WithTokenTimeout(d time.Duration) Option {
	return func(s *Service) { s.tokenTimeout = d }
}

// WithNonceGenerator replaces the default crypto/rand nonce source.
func WithNonceGenerator(g *nonce.Generator) Option {
	return func(s *Service) { s.nonces = g }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source for challenge timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service issues challenges and redeems them for bearer tokens. It is safe
// for concurrent use; all shared state lives in the cache.
type Service struct {
	registry *Registry
	cache    challenge.Cache
	tokens   *jwtauth.ServiceTokens
	nonces   *nonce.Generator
	log      *slog.Logger
	now      func() time.Time

	challengeTTL time.Duration
	tokenTimeout time.Duration
}

// New creates a Service.
func New(registry *Registry, cache challenge.Cache, tokens *jwtauth.ServiceTokens, opts ...Option) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if cache == nil {
		return nil, errors.New("challenge cache is required")
	}
	if tokens == nil {
		return nil, errors.New("token signer is required")
	}
	s := &Service{
		registry:     registry,
		cache:        cache,
		tokens:       tokens,
		nonces:       nonce.NewGenerator(),
		log:          slog.Default(),
		now:          time.Now,
		challengeTTL: DefaultChallengeTTL,
		tokenTimeout: DefaultTokenTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.challengeTTL <= 0 {
		return nil, fmt.Errorf("challenge ttl must be positive, got %s", s.challengeTTL)
	}
	if s.tokenTimeout < time.Second {
		return nil, fmt.Errorf("token timeout must be at least 1s, got %s", s.tokenTimeout)
	}
	return s, nil
}

// Registry returns the account registry the service was built with.
func (s *Service) Registry() *Registry { return s.registry }

// CreateChallenge issues a fresh nonce for serviceName, replacing any
// outstanding challenge for it.
func (s *Service) CreateChallenge(ctx context.Context, serviceName string) (string, error) {
	acct, ok := s.registry.Lookup(serviceName)
	if !ok {
		s.log.InfoContext(ctx, "authn.challenge.create.fail", slog.String("service", serviceName), slog.String("reason", "unknown_service"))
		return "", ErrServiceNotFound
	}

	n, err := s.nonces.Generate()
	if err != nil {
		s.log.ErrorContext(ctx, "authn.challenge.create.fail", slog.String("service", serviceName), slog.String("err", err.Error()))
		return "", err
	}

	ch := challenge.Challenge{
		ServiceName: acct.Name,
		Nonce:       n,
		Secret:      acct.Secret,
		CreatedAt:   s.now(),
	}
	if err := s.cache.Put(ctx, acct.Name, ch, s.challengeTTL); err != nil {
		s.log.ErrorContext(ctx, "authn.challenge.create.fail", slog.String("service", serviceName), slog.String("err", err.Error()))
		return "", fmt.Errorf("store challenge: %w", err)
	}

	s.log.DebugContext(ctx, "authn.challenge.create.ok", slog.String("service", serviceName))
	return n, nil
}

// RedeemChallenge consumes the outstanding challenge for serviceName and,
// when proofHash matches, returns a signed bearer token.
func (s *Service) RedeemChallenge(ctx context.Context, serviceName, proofHash string) (*TokenGrant, error) {
	ch, err := s.cache.TakeAndRemove(ctx, serviceName)
	if err != nil {
		s.log.ErrorContext(ctx, "authn.token.redeem.fail", slog.String("service", serviceName), slog.String("err", err.Error()))
		return nil, fmt.Errorf("take challenge: %w", err)
	}
	if ch == nil {
		s.log.InfoContext(ctx, "authn.token.redeem.fail", slog.String("service", serviceName), slog.String("reason", "challenge_not_found"))
		return nil, ErrChallengeNotFound
	}

	expected := ComputeProof(ch.Nonce, ch.Secret)
	if !hmac.Equal([]byte(expected), []byte(proofHash)) {
		s.log.InfoContext(ctx, "authn.token.redeem.fail", slog.String("service", serviceName), slog.String("reason", "invalid_challenge_hash"))
		return nil, ErrInvalidChallengeHash
	}

	tok, exp, err := s.tokens.Issue(serviceName, s.tokenTimeout)
	if err != nil {
		s.log.ErrorContext(ctx, "authn.token.redeem.fail", slog.String("service", serviceName), slog.String("err", err.Error()))
		return nil, err
	}

	s.log.InfoContext(ctx, "authn.token.redeem.ok", slog.String("service", serviceName), slog.Time("expires_at", exp))
	return &TokenGrant{
		Token:     tok,
		ExpiresIn: int(s.tokenTimeout / time.Second),
		ExpiresAt: exp,
	}, nil
}

// ComputeProof returns the lowercase hex HMAC-SHA256 of nonce keyed by
// secret, the value a service submits to redeem a challenge.
func ComputeProof(nonce string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}
