package jwtauth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSigningSecret = []byte("workbench-test-signing-secret-0123456789")

func newTestServiceTokens(t *testing.T, now *time.Time) *ServiceTokens {
	t.Helper()
	st, err := NewServiceTokens(testSigningSecret, "attack-workbench", WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewServiceTokens: %v", err)
	}
	return st
}

func TestServiceTokens_IssueAndVerify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := newTestServiceTokens(t, &now)

	tok, exp, err := st.Issue("svc-A", 300*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := now.Add(300 * time.Second); !exp.Equal(want) {
		t.Fatalf("expiry: want %v, got %v", want, exp)
	}

	claims, err := st.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "svc-A" {
		t.Fatalf("subject: want svc-A, got %q", claims.Subject)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}
}

func TestServiceTokens_ExpiresAfterTimeout(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := newTestServiceTokens(t, &now)

	tok, _, err := st.Issue("svc-A", 60*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, err := st.Verify(tok); err != nil {
		t.Fatalf("Verify before expiry: %v", err)
	}

	now = now.Add(2 * time.Second)
	_, err = st.Verify(tok)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token must also be ErrUnauthorized, got %v", err)
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expired token must not report ErrInvalidSignature")
	}
}

func TestServiceTokens_WrongSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	other, err := NewServiceTokens([]byte("a-completely-different-secret-value!!"), "attack-workbench", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewServiceTokens: %v", err)
	}
	st := newTestServiceTokens(t, &now)

	fresh, _, err := other.Issue("svc-A", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	stale, _, err := other.Issue("svc-A", time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := st.Verify(fresh); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("fresh token: want ErrInvalidSignature, got %v", err)
	}

	now = now.Add(time.Hour)
	if _, err := st.Verify(stale); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expired foreign token: want ErrInvalidSignature regardless of expiry, got %v", err)
	}
}

func TestServiceTokens_RejectsForeignShapes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	st := newTestServiceTokens(t, &now)

	good, _, err := st.Issue("svc-A", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "attack-workbench", "sub": "svc-A", "exp": now.Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	wrongIssuer, err := NewServiceTokens(testSigningSecret, "someone-else", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewServiceTokens: %v", err)
	}
	foreignIss, _, err := wrongIssuer.Issue("svc-A", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for name, tok := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"tampered":     tampered,
		"alg none":     noneTok,
		"wrong issuer": foreignIss,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := st.Verify(tok); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("want ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestNewServiceTokens_ShortSecret(t *testing.T) {
	if _, err := NewServiceTokens([]byte("short"), "attack-workbench"); err == nil {
		t.Fatalf("expected error for short signing secret")
	}
}
