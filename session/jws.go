package session

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sync"

	jose "github.com/go-jose/go-jose/v4"
)

// KeyRing holds Ed25519 keys by kid with one active key used for signing.
// Retired keys stay registered so cookies they signed keep verifying until
// they expire.
type KeyRing struct {
	mu        sync.RWMutex
	activeKid string
	privKeys  map[string]ed25519.PrivateKey
	pubKeys   map[string]ed25519.PublicKey
}

// NewKeyRing returns an empty KeyRing.
func NewKeyRing() *KeyRing {
	return &KeyRing{
		privKeys: make(map[string]ed25519.PrivateKey),
		pubKeys:  make(map[string]ed25519.PublicKey),
	}
}

// KeyFromSeed derives a deterministic Ed25519 key from an operator-supplied
// seed string so that every replica signs with the same key.
func KeyFromSeed(seed string) ed25519.PrivateKey {
	sum := sha256.Sum256([]byte(seed))
	return ed25519.NewKeyFromSeed(sum[:])
}

// AddEd25519Key registers a key pair under kid. The active key is unchanged.
func (k *KeyRing) AddEd25519Key(kid string, priv ed25519.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.privKeys[kid] = priv
	k.pubKeys[kid] = priv.Public().(ed25519.PublicKey)
}

// SetActive selects the key used for signing.
func (k *KeyRing) SetActive(kid string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.privKeys[kid]; !ok {
		return fmt.Errorf("unknown kid: %s", kid)
	}
	k.activeKid = kid
	return nil
}

func (k *KeyRing) ActiveKID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.activeKid
}

// Sign returns a compact JWS over payload using the active key.
func (k *KeyRing) Sign(payload []byte) (string, error) {
	k.mu.RLock()
	kid := k.activeKid
	priv, ok := k.privKeys[kid]
	k.mu.RUnlock()
	if kid == "" {
		return "", fmt.Errorf("no active kid configured")
	}
	if !ok {
		return "", fmt.Errorf("active kid not found: %s", kid)
	}

	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, opts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize jws: %w", err)
	}
	return compact, nil
}

// Verify parses and verifies a compact JWS and returns its payload and the
// kid that signed it.
func (k *KeyRing) Verify(token string) ([]byte, string, error) {
	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.EdDSA})
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse jws: %w", err)
	}
	if len(jws.Signatures) != 1 {
		return nil, "", fmt.Errorf("unexpected signatures: %d", len(jws.Signatures))
	}
	kid := jws.Signatures[0].Protected.KeyID
	k.mu.RLock()
	pub, ok := k.pubKeys[kid]
	k.mu.RUnlock()
	if !ok {
		return nil, kid, fmt.Errorf("unknown kid: %s", kid)
	}
	payload, err := jws.Verify(pub)
	if err != nil {
		return nil, kid, fmt.Errorf("signature verification failed: %w", err)
	}
	return payload, kid, nil
}
