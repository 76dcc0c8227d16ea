// ABOUTME: Unit tests for the remember-me token codec
// ABOUTME: Covers round trips, first/last separator splitting, and signature tampering

package secure

import (
	"strings"
	"testing"
	"time"
)

// tokenTestSecret meets the MinSecretLength requirement.
var tokenTestSecret = []byte("token-codec-test-secret-32-bytes")

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(tokenTestSecret)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec
}

func TestNewTokenCodec_ShortSecret(t *testing.T) {
	if _, err := NewTokenCodec([]byte("too short")); err != ErrSecretTooShort {
		t.Errorf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	expiresAt := time.Now().Add(time.Hour).UnixMilli()
	value := codec.Encode("alice", expiresAt)

	tok, ok := codec.Decode(value)
	if !ok {
		t.Fatalf("Decode(%q) failed", value)
	}
	if tok.Username != "alice" {
		t.Errorf("Username = %q, want %q", tok.Username, "alice")
	}
	if tok.ExpiresAt != expiresAt {
		t.Errorf("ExpiresAt = %d, want %d", tok.ExpiresAt, expiresAt)
	}
	if !codec.Verify(tok) {
		t.Error("Verify() = false for a freshly encoded token")
	}
	if tok.Expired(time.Now()) {
		t.Error("Expired() = true for a future expiration")
	}
}

func TestTokenCodec_UsernameWithDashes(t *testing.T) {
	codec := newTestCodec(t)

	value := codec.Encode("mary-jane-watson", 4102444800000)
	tok, ok := codec.Decode(value)
	if !ok {
		t.Fatal("Decode() failed")
	}
	if tok.Username != "mary-jane-watson" {
		t.Errorf("Username = %q, want %q", tok.Username, "mary-jane-watson")
	}
	if tok.ExpiresAt != 4102444800000 {
		t.Errorf("ExpiresAt = %d, want 4102444800000", tok.ExpiresAt)
	}
	if !codec.Verify(tok) {
		t.Error("Verify() = false")
	}
}

func TestTokenCodec_DecodeMalformed(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name  string
		value string
	}{
		{name: "empty", value: ""},
		{name: "no separators", value: "garbage"},
		{name: "one separator", value: "sig-alice"},
		{name: "non-numeric expiration", value: "sig-alice-tomorrow"},
		{name: "leading separator only", value: "-alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := codec.Decode(tt.value); ok {
				t.Errorf("Decode(%q) ok = true, want false", tt.value)
			}
		})
	}
}

func TestTokenCodec_TamperedSignature(t *testing.T) {
	codec := newTestCodec(t)

	value := codec.Encode("alice", 4102444800000)
	sig, rest, _ := strings.Cut(value, "-")

	// Flip each byte of the signature segment; decode must still succeed
	// while verify fails.
	for i := 0; i < len(sig); i++ {
		flipped := []byte(sig)
		flipped[i] ^= 0x01
		tok, ok := codec.Decode(string(flipped) + "-" + rest)
		if !ok {
			t.Fatalf("Decode() failed after flipping byte %d", i)
		}
		if codec.Verify(tok) {
			t.Errorf("Verify() = true after flipping signature byte %d", i)
		}
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	codec := newTestCodec(t)

	past := time.Now().Add(-time.Hour).UnixMilli()
	tok, ok := codec.Decode(codec.Encode("alice", past))
	if !ok {
		t.Fatal("Decode() failed")
	}
	if !tok.Expired(time.Now()) {
		t.Error("Expired() = false for a past expiration")
	}
	// Expiry is independent of signature validity.
	if !codec.Verify(tok) {
		t.Error("Verify() = false for an expired but authentic token")
	}
}

func TestTokenCodec_Year2100Example(t *testing.T) {
	codec := newTestCodec(t)

	sig := codec.Sign("alice-4102444800000")
	value := sig + "-alice-4102444800000"

	tok, ok := codec.Decode(value)
	if !ok {
		t.Fatal("Decode() failed")
	}
	if tok.Username != "alice" || tok.ExpiresAt != 4102444800000 {
		t.Errorf("decoded %+v, want alice/4102444800000", tok)
	}
	if !codec.Verify(tok) {
		t.Error("Verify() = false with the signing key")
	}

	other, err := NewTokenCodec([]byte("a-completely-different-32b-secret"))
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	if other.Verify(tok) {
		t.Error("Verify() = true with a different key")
	}
}
