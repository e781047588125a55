package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestAuth(t *testing.T, dev bool, keys ...string) *Auth {
	t.Helper()
	auth, err := NewAuth(AppConfig{DevMode: dev, APIKeys: keys, JWTSecret: "test-secret"}, nil)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return auth
}

func TestCheckKey(t *testing.T) {
	auth := newTestAuth(t, false, "alpha", "beta")
	if !auth.CheckKey("alpha") || !auth.CheckKey("beta") {
		t.Error("configured keys should be accepted")
	}
	if auth.CheckKey("gamma") || auth.CheckKey("") {
		t.Error("unknown keys should be rejected")
	}
}

func TestDevModeAcceptsAnyKey(t *testing.T) {
	auth := newTestAuth(t, true)
	if !auth.DevMode() || !auth.CheckKey("whatever") {
		t.Error("dev mode should accept any key")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	auth := newTestAuth(t, false, "alpha")
	tok, err := auth.IssueToken("alpha", "  maverick  ")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	key, name, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if key != "alpha" || name != "maverick" {
		t.Errorf("got key %q name %q", key, name)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth := newTestAuth(t, false, "alpha")
	if _, _, err := auth.ValidateToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	other := newTestAuth(t, false, "alpha")
	other.jwtSecret = []byte("another-secret")
	tok, _ := other.IssueToken("alpha", "x")
	if _, _, err := auth.ValidateToken(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign signature accepted: %v", err)
	}

	// A token for a key that is no longer configured
	revoked := newTestAuth(t, false, "beta")
	tok, _ = revoked.IssueToken("beta", "x")
	if _, _, err := auth.ValidateToken(tok); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	auth := newTestAuth(t, false, "alpha")
	for i := 0; i < maxAuthFails; i++ {
		if err := auth.Login("wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("attempt %d: expected ErrInvalidKey, got %v", i, err)
		}
	}
	if err := auth.Login("alpha", "1.2.3.4"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if err := auth.Login("alpha", "5.6.7.8"); err != nil {
		t.Errorf("other addresses are unaffected, got %v", err)
	}
}

func TestSecretPersisted(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	first, err := NewAuth(AppConfig{APIKeys: []string{"alpha"}}, db)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	tok, err := first.IssueToken("alpha", "x")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	second, err := NewAuth(AppConfig{APIKeys: []string{"alpha"}}, db)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	if _, _, err := second.ValidateToken(tok); err != nil {
		t.Errorf("token should survive a restart: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer ":      "",
		"":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("  ace "); got != "ace" {
		t.Errorf("expected trimmed name, got %q", got)
	}
	if got := SanitizeName(strings.Repeat("x", 40)); len(got) != maxNameLen {
		t.Errorf("expected %d chars, got %d", maxNameLen, len(got))
	}
	if got := SanitizeName("   "); !strings.HasPrefix(got, "Pilot_") {
		t.Errorf("expected generated name, got %q", got)
	}

	got := SanitizeName("a" + strings.Repeat("ä", 20))
	if !utf8.ValidString(got) {
		t.Errorf("truncated name is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != maxNameLen {
		t.Errorf("expected %d runes, got %d", maxNameLen, n)
	}

	if got := SanitizeName("ok\xff\xfename"); got != "okname" {
		t.Errorf("expected invalid bytes dropped, got %q", got)
	}
	if got := SanitizeName("\xff\xfe"); !strings.HasPrefix(got, "Pilot_") {
		t.Errorf("expected generated name for garbage, got %q", got)
	}
}
