package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Remote    RemoteConfig
	Storage   StorageConfig
	Clipboard ClipboardConfig
	Share     ShareConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

// RemoteConfig points at the shared group store (a Supabase-compatible
// REST and realtime endpoint).
type RemoteConfig struct {
	BaseURL string
	APIKey  string
}

type StorageConfig struct {
	DataDir string
}

type ClipboardConfig struct {
	PollInterval string
}

// Interval parses PollInterval, falling back to 2s on bad input.
func (c ClipboardConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// ShareConfig controls dispatch behavior. With Strict set, a share that
// exhausts every delivery strategy reports failure instead of success.
type ShareConfig struct {
	Strict bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Clipboard: ClipboardConfig{
			PollInterval: "2s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.groupclip.app) and the
// remote API key falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/groupclip/config.json
// and the key falls back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (GROUPCLIP_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Remote.APIKey == "" {
		if key, err := kc.Get("groupclip", "remote_api_key"); err == nil && key != "" {
			cfg.Remote.APIKey = key
		}
	}

	if cfg.Remote.BaseURL == "" {
		return Config{}, fmt.Errorf("missing required config: remote.base_url. " +
			"Set it via `groupclip config set remote.base_url <url>` or GROUPCLIP_REMOTE_BASE_URL")
	}
	if cfg.Remote.APIKey == "" {
		msg := "missing required config: remote API key. " +
			"Set it via environment variable GROUPCLIP_REMOTE_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
