package sealer

import (
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(b), 32)))
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New(testKey('k'))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := s.Seal("tenant-1", "api-key-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "api-key-123") {
		t.Fatalf("sealed value leaks plaintext")
	}
	got, err := s.Open("tenant-1", sealed)
	if err != nil || got != "api-key-123" {
		t.Fatalf("open = %q, %v", got, err)
	}
	again, _ := s.Seal("tenant-1", "api-key-123")
	if again == sealed {
		t.Fatalf("expected fresh nonce per seal")
	}
}

func TestOpenRejectsWrongTenantAndKey(t *testing.T) {
	s, _ := New(testKey('k'))
	other, _ := New(testKey('o'))
	sealed, _ := s.Seal("tenant-1", "secret")

	if _, err := s.Open("tenant-2", sealed); err != ErrMalformed {
		t.Fatalf("expected tenant mismatch to fail, got %v", err)
	}
	if _, err := other.Open("tenant-1", sealed); err != ErrMalformed {
		t.Fatalf("expected key mismatch to fail, got %v", err)
	}
	if _, err := s.Open("tenant-1", "!!"); err != ErrMalformed {
		t.Fatalf("expected malformed input to fail, got %v", err)
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Fatalf("expected short key to fail")
	}
	if got, err := mustSealer(t).Open("t", ""); err != nil || got != "" {
		t.Fatalf("empty open = %q, %v", got, err)
	}
}

func mustSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := New(testKey('k'))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}
