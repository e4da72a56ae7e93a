package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all mailsweep configuration.
type Config struct {
	Sync     SyncConfig     `toml:"sync"`
	Accounts AccountsConfig `toml:"accounts"`
	Gmail    GmailConfig    `toml:"gmail"`
	Cleanup  CleanupConfig  `toml:"cleanup"`
	Server   ServerConfig   `toml:"server"`
}

// GmailConfig holds Gmail OAuth credentials.
// Users can override the embedded defaults via config file or env vars.
type GmailConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// SyncConfig holds email synchronization settings.
type SyncConfig struct {
	Interval     string `toml:"interval"`
	InitialCount int    `toml:"initial_count"`
}

// AccountsConfig holds account selection settings.
type AccountsConfig struct {
	Default string `toml:"default"`
}

// CleanupConfig controls classification thresholds and what a cleanup run may do.
type CleanupConfig struct {
	MinConfidence          float64 `toml:"min_confidence"`
	PreviewMode            bool    `toml:"preview_mode"`
	AutoUnsubscribe        bool    `toml:"auto_unsubscribe"`
	AutoDelete             bool    `toml:"auto_delete"`
	RateLimitDelay         string  `toml:"rate_limit_delay"`
	MaxEmails              int     `toml:"max_emails"`
	Workers                int     `toml:"workers"`
	RulesOverrideAllowList bool    `toml:"rules_override_allowlist"`
}

// Delay parses RateLimitDelay, falling back to one second when it is unset or invalid.
func (c CleanupConfig) Delay() time.Duration {
	d, err := time.ParseDuration(c.RateLimitDelay)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Sync: SyncConfig{
			Interval:     "5m",
			InitialCount: 500,
		},
		Cleanup: CleanupConfig{
			MinConfidence:  0.7,
			PreviewMode:    true,
			RateLimitDelay: "1s",
			MaxEmails:      50,
			Workers:        4,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8725",
		},
	}
}

// Load reads config from path. If path is empty, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultPath returns the config file location inside ConfigDir.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// ConfigDir returns the mailsweep config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mailsweep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mailsweep")
}

// DataDir returns the mailsweep data directory path.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mailsweep")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "mailsweep")
}
