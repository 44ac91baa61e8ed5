package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
)

func TestSecretRoundTrip(t *testing.T) {
	hash, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !CheckSecret(hash, "s3cret") {
		t.Error("expected secret to match")
	}
	if CheckSecret(hash, "wrong") {
		t.Error("expected mismatch for wrong secret")
	}
	if CheckSecret("", "s3cret") {
		t.Error("empty hash must never match")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		tok string
		ok  bool
	}{
		"Bearer abc":  {"abc", true},
		"bearer  abc": {"abc", true},
		"Basic abc":   {"", false},
		"Bearer ":     {"", false},
		"":            {"", false},
	}
	for header, want := range cases {
		tok, ok := BearerToken(header)
		if tok != want.tok || ok != want.ok {
			t.Errorf("BearerToken(%q) = %q,%v want %q,%v", header, tok, ok, want.tok, want.ok)
		}
	}
}

func TestLinks(t *testing.T) {
	l := NewLinks(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32), time.Hour)

	tok, err := l.Sign("b-1", "s-1")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, s, err := l.Verify(tok)
	if err != nil || b != "b-1" || s != "s-1" {
		t.Fatalf("Verify = %q %q %v", b, s, err)
	}

	other := NewLinks(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32), time.Hour)
	if _, _, err := other.Verify(tok); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("expected ErrInvalidLink for foreign key, got %v", err)
	}
}
