package store

import (
	"strings"
	"testing"
)

func TestTokensRoundTrip(t *testing.T) {
	ts, err := NewTokenStore(setupSettingsTestDB(t), "")
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}

	if err := ts.SaveTokens("access-1", "refresh-1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	access, refresh, err := ts.Tokens()
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" {
		t.Errorf("tokens = (%q, %q)", access, refresh)
	}
}

func TestTokensEmptyWhenUnset(t *testing.T) {
	ts, _ := NewTokenStore(setupSettingsTestDB(t), "")

	access, refresh, err := ts.Tokens()
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if access != "" || refresh != "" {
		t.Errorf("tokens = (%q, %q), want empty", access, refresh)
	}
}

func TestSaveTokensRequiresAccess(t *testing.T) {
	ts, _ := NewTokenStore(setupSettingsTestDB(t), "")

	if err := ts.SaveTokens("", "refresh"); err == nil {
		t.Error("expected error for empty access token")
	}
}

func TestClearTokensIdempotent(t *testing.T) {
	ts, _ := NewTokenStore(setupSettingsTestDB(t), "")
	ts.SaveTokens("access", "refresh")

	for i := 0; i < 2; i++ {
		if err := ts.ClearTokens(); err != nil {
			t.Fatalf("clear %d: %v", i+1, err)
		}
	}
	access, refresh, _ := ts.Tokens()
	if access != "" || refresh != "" {
		t.Errorf("tokens = (%q, %q) after clear", access, refresh)
	}
}

func TestSealedTokensAtRest(t *testing.T) {
	ss := setupSettingsTestDB(t)
	ts, err := NewTokenStore(ss, "correct horse")
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}

	if err := ts.SaveTokens("access-secret", "refresh-secret"); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := ss.Get(KeyAccessToken)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if strings.Contains(raw, "access-secret") {
		t.Error("access token stored in plaintext")
	}

	// A second store with the same passphrase reuses the persisted salt.
	reopened, err := NewTokenStore(ss, "correct horse")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	access, refresh, err := reopened.Tokens()
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if access != "access-secret" || refresh != "refresh-secret" {
		t.Errorf("tokens = (%q, %q)", access, refresh)
	}

	wrong, _ := NewTokenStore(ss, "wrong passphrase")
	if _, _, err := wrong.Tokens(); err == nil {
		t.Error("expected decrypt error with wrong passphrase")
	}
}

func TestSealerRejectsGarbage(t *testing.T) {
	s, err := newSealer(DeriveKey("pass", make([]byte, saltSize)))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	if _, err := s.open("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := s.open("AAAA"); err == nil {
		t.Error("expected error for short value")
	}
}
