package nonce

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestGenerate_ShapeAndUniqueness(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{})
	for i := 0; i < 256; i++ {
		n, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(n) != 2*Size {
			t.Fatalf("length: want %d, got %d", 2*Size, len(n))
		}
		if strings.ToLower(n) != n {
			t.Fatalf("nonce must be lowercase hex: %q", n)
		}
		if _, dup := seen[n]; dup {
			t.Fatalf("duplicate nonce after %d draws", i)
		}
		seen[n] = struct{}{}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	src := bytes.Repeat([]byte{0xab}, Size)
	n, err := NewGeneratorFromReader(bytes.NewReader(src)).Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if want := strings.Repeat("ab", Size); n != want {
		t.Fatalf("want %s, got %s", want, n)
	}
}

func TestGenerate_ShortRead(t *testing.T) {
	g := NewGeneratorFromReader(bytes.NewReader(make([]byte, Size-1)))
	_, err := g.Generate()
	if !errors.Is(err, ErrEntropyUnavailable) {
		t.Fatalf("want ErrEntropyUnavailable, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("want wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}
