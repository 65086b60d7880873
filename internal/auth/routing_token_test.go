package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRoutingTokenRoundTrip(t *testing.T) {
	t.Parallel()

	codec, err := NewRoutingCodec("test-secret")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tenantID := uuid.NewString()
	credentialID := uuid.NewString()

	token, err := codec.Encode(tenantID, credentialID)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gotTenant, gotCredential, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotTenant != tenantID || gotCredential != credentialID {
		t.Fatalf("round trip mismatch: got (%s, %s)", gotTenant, gotCredential)
	}
}

func TestRoutingTokenTamperRejected(t *testing.T) {
	t.Parallel()

	codec, _ := NewRoutingCodec("test-secret")
	token, err := codec.Encode(uuid.NewString(), uuid.NewString())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Flip a character in the signature segment.
	tampered := token[:len(token)-2] + flipChar(token[len(token)-2:])
	if _, _, err := codec.Decode(tampered); !errors.Is(err, ErrInvalidRoutingToken) {
		t.Fatalf("expected ErrInvalidRoutingToken, got %v", err)
	}
}

func TestRoutingTokenWrongSecretRejected(t *testing.T) {
	t.Parallel()

	codec, _ := NewRoutingCodec("secret-a")
	other, _ := NewRoutingCodec("secret-b")
	token, err := codec.Encode(uuid.NewString(), uuid.NewString())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, _, err := other.Decode(token); !errors.Is(err, ErrInvalidRoutingToken) {
		t.Fatalf("expected ErrInvalidRoutingToken, got %v", err)
	}
}

func TestRoutingTokenGarbageRejected(t *testing.T) {
	t.Parallel()

	codec, _ := NewRoutingCodec("test-secret")
	for _, raw := range []string{"", "  ", "not-a-token", "a.b.c", strings.Repeat("x", 512)} {
		if _, _, err := codec.Decode(raw); !errors.Is(err, ErrInvalidRoutingToken) {
			t.Fatalf("Decode(%q): expected ErrInvalidRoutingToken, got %v", raw, err)
		}
	}
}

func TestRoutingCodecRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewRoutingCodec(" "); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func flipChar(s string) string {
	if strings.HasPrefix(s, "A") {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}
