// Package nonce generates the single-use random values handed out as
// service authentication challenges.
package nonce

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Size is the number of random bytes in a nonce. The encoded form is twice
// as long.
const Size = 48

// ErrEntropyUnavailable is returned when the random source fails.
var ErrEntropyUnavailable = errors.New("nonce: entropy source unavailable")

// Generator produces hex-encoded nonces. It is safe for concurrent use as
// long as its reader is.
type Generator struct {
	randReader io.Reader
}

// NewGenerator returns a Generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{randReader: rand.Reader}
}

// NewGeneratorFromReader returns a Generator reading from r. Intended for
// tests that need deterministic or failing entropy.
func NewGeneratorFromReader(r io.Reader) *Generator {
	return &Generator{randReader: r}
}

// Generate returns a fresh lowercase hex nonce of 2*Size characters.
func (g *Generator) Generate() (string, error) {
	b := make([]byte, Size)
	if _, err := io.ReadFull(g.randReader, b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	return hex.EncodeToString(b), nil
}
