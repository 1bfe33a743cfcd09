package config

import (
	"errors"
	"os"
	"strings"
	"testing"
)

// mockBackend is an in-memory ConfigBackend for tests.
type mockBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (m *mockBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *mockBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mockBackend) SetString(key, val string) error {
	if m.strings == nil {
		m.strings = make(map[string]string)
	}
	m.strings[key] = val
	return nil
}

func (m *mockBackend) SetInt(key string, val int) error {
	if m.ints == nil {
		m.ints = make(map[string]int)
	}
	m.ints[key] = val
	return nil
}

func (m *mockBackend) Delete(key string) error {
	delete(m.strings, key)
	delete(m.ints, key)
	return nil
}

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := &mockBackend{strings: map[string]string{
		"remote.base_url": "https://proj.example.co",
	}}

	cfg, err := loadWith(b, mockKeychain{value: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Clipboard.PollInterval != "2s" {
		t.Errorf("Clipboard.PollInterval = %q, want 2s", cfg.Clipboard.PollInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Share.Strict {
		t.Error("Share.Strict defaults to true, want false")
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)
	b := &mockBackend{
		strings: map[string]string{
			"remote.base_url":         "https://proj.example.co",
			"clipboard.poll_interval": "500ms",
			"share.strict":            "true",
			"log.level":               "debug",
			"storage.data_dir":        "/tmp/groupclip-test",
		},
		ints: map[string]int{
			"server.port": 5000,
		},
	}

	cfg, err := loadWith(b, mockKeychain{value: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Remote.BaseURL != "https://proj.example.co" {
		t.Errorf("Remote.BaseURL = %q", cfg.Remote.BaseURL)
	}
	if !cfg.Share.Strict {
		t.Error("Share.Strict = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Storage.DataDir != "/tmp/groupclip-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := &mockBackend{strings: map[string]string{
		"remote.base_url": "https://from-backend.example.co",
	}}
	t.Setenv("GROUPCLIP_REMOTE_BASE_URL", "https://from-env.example.co")
	t.Setenv("GROUPCLIP_REMOTE_API_KEY", "env-key")

	cfg, err := loadWith(b, mockKeychain{err: errors.New("unused")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Remote.BaseURL != "https://from-env.example.co" {
		t.Errorf("Remote.BaseURL = %q, want env value", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIKey != "env-key" {
		t.Errorf("Remote.APIKey = %q, want env-key", cfg.Remote.APIKey)
	}
}

func TestMissingBaseURL(t *testing.T) {
	clearEnv(t)
	_, err := loadWith(&mockBackend{}, mockKeychain{value: "key"})
	if err == nil {
		t.Fatal("expected error for missing base URL, got nil")
	}
	if !strings.Contains(err.Error(), "remote.base_url") {
		t.Errorf("error = %q, want mention of remote.base_url", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	clearEnv(t)
	b := &mockBackend{strings: map[string]string{
		"remote.base_url": "https://proj.example.co",
	}}

	_, err := loadWith(b, mockKeychain{err: errors.New("not found")})
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	b := &mockBackend{strings: map[string]string{
		"remote.base_url": "https://proj.example.co",
	}}

	cfg, err := loadWith(b, mockKeychain{value: "keychain-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Remote.APIKey != "keychain-secret" {
		t.Errorf("Remote.APIKey = %q, want keychain-secret", cfg.Remote.APIKey)
	}
}

func TestClipboardInterval_BadInputFallsBack(t *testing.T) {
	c := ClipboardConfig{PollInterval: "not-a-duration"}
	if got := c.Interval().Seconds(); got != 2 {
		t.Errorf("Interval = %vs, want 2s fallback", got)
	}
	c = ClipboardConfig{PollInterval: "250ms"}
	if got := c.Interval().Milliseconds(); got != 250 {
		t.Errorf("Interval = %vms, want 250", got)
	}
}

func TestEnsureAPIToken_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := EnsureAPIToken(dir)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	if first == "" {
		t.Fatal("empty token")
	}

	second, err := EnsureAPIToken(dir)
	if err != nil {
		t.Fatalf("EnsureAPIToken (second): %v", err)
	}
	if second != first {
		t.Errorf("token changed across calls: %q vs %q", first, second)
	}

	info, err := os.Stat(dir + "/api-token")
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSetKey_UnknownKey(t *testing.T) {
	if err := SetKey("no.such.key", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidKeys_ExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "remote.api_key" {
			t.Error("secret key listed in ValidKeys")
		}
	}
}
