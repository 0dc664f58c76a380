package jwtauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinServiceSecretLen is the minimum accepted length of the HS256 signing secret.
const MinServiceSecretLen = 32

var (
	// ErrInvalidSignature indicates a service token whose signature does not
	// verify under the signing secret, or that is not a token this verifier issued.
	ErrInvalidSignature = errors.New("jwtauth: invalid token signature")
	// ErrExpired indicates a correctly signed service token past its expiry.
	ErrExpired = errors.New("jwtauth: token expired")
)

// ServiceClaims are the claims carried by a service account token.
type ServiceClaims struct {
	jwt.RegisteredClaims
}

// ServiceTokens mints and verifies self-contained HS256 bearer tokens for
// service accounts. Tokens are never stored; validity is decided solely by
// signature and expiry.
type ServiceTokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// ServiceTokenOption configures ServiceTokens.
type ServiceTokenOption func(*ServiceTokens)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) ServiceTokenOption {
	return func(s *ServiceTokens) { s.now = now }
}

// NewServiceTokens returns a token minter/verifier bound to secret and issuer.
func NewServiceTokens(secret []byte, issuer string, opts ...ServiceTokenOption) (*ServiceTokens, error) {
	if len(secret) < MinServiceSecretLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinServiceSecretLen)
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	s := &ServiceTokens{secret: append([]byte(nil), secret...), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue returns a signed token asserting subject, valid for ttl.
func (s *ServiceTokens) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be positive")
	}
	now := s.now()
	exp := now.Add(ttl)
	claims := ServiceClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign service token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the token's signature, then its expiry. Failures wrap
// ErrInvalidSignature or ErrExpired, and both wrap ErrUnauthorized.
func (s *ServiceTokens) Verify(tok string) (*ServiceClaims, error) {
	if tok == "" {
		return nil, errors.Join(ErrUnauthorized, ErrInvalidSignature)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	claims := &ServiceClaims{}
	_, err := parser.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return s.secret, nil })
	if err != nil {
		// Signature is verified before claims, so a token signed with the
		// wrong secret reports a signature failure even when also expired.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", errors.Join(ErrUnauthorized, ErrExpired), err)
		}
		return nil, fmt.Errorf("%w: %w", errors.Join(ErrUnauthorized, ErrInvalidSignature), err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", errors.Join(ErrUnauthorized, ErrInvalidSignature))
	}
	return claims, nil
}
