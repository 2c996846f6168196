// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tidechat.
//
// Supports TOML configuration with sensible defaults and environment
// variable overrides.
//
// Configuration file location:
//   - ~/.tidechat/config.toml
//   - Built-in defaults
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete tidechat configuration.
type Config struct {
	Version string `toml:"version"`

	// Server configuration
	Server ServerConfig `toml:"server"`

	// Request pipeline configuration
	Request RequestConfig `toml:"request"`

	// UI configuration
	UI UIConfig `toml:"ui"`

	// Log configuration
	Log LogConfig `toml:"log"`
}

// ServerConfig describes the remote Tide service.
type ServerConfig struct {
	// URL is the base HTTP URL of the service, e.g. "https://api.tidechat.dev"
	URL string `toml:"url"`
	// WSURL is the WebSocket base URL. Derived from URL when empty
	// (http -> ws, https -> wss).
	WSURL string `toml:"ws_url"`
}

// RequestConfig tunes the request pipeline.
type RequestConfig struct {
	// TimeoutSecs is the per-request timeout budget (default: 30)
	TimeoutSecs int `toml:"timeout_secs"`
	// MaxRetries is the transient-failure retry budget (default: 3)
	MaxRetries int `toml:"max_retries"`
	// RetryBaseMillis is the linear backoff base delay (default: 1000)
	RetryBaseMillis int `toml:"retry_base_millis"`
	// RateLimitPerSec enables a client-side request limiter when > 0.
	// Zero disables limiting (default).
	RateLimitPerSec float64 `toml:"rate_limit_per_sec"`
	// RateLimitBurst is the limiter burst size (default: 4)
	RateLimitBurst int `toml:"rate_limit_burst"`
}

// UIConfig contains REPL configuration.
type UIConfig struct {
	// RenderMarkdown renders assistant answers as markdown
	RenderMarkdown bool `toml:"render_markdown"`
	// Theme is the render theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the zerolog level: "debug", "info", "warn", "error"
	Level string `toml:"level"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			URL: "https://api.tidechat.dev",
		},
		Request: RequestConfig{
			TimeoutSecs:     30,
			MaxRetries:      3,
			RetryBaseMillis: 1000,
			RateLimitPerSec: 0,
			RateLimitBurst:  4,
		},
		UI: UIConfig{
			RenderMarkdown: true,
			Theme:          "auto",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	if c.Request.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Request.TimeoutSecs) * time.Second
}

// RetryBaseDelay returns the linear backoff base delay.
func (c *Config) RetryBaseDelay() time.Duration {
	if c.Request.RetryBaseMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.Request.RetryBaseMillis) * time.Millisecond
}

// WebSocketURL returns the WebSocket base URL, deriving it from the HTTP
// URL when not configured explicitly.
func (c *Config) WebSocketURL() string {
	if c.Server.WSURL != "" {
		return strings.TrimSuffix(c.Server.WSURL, "/")
	}
	u := strings.TrimSuffix(c.Server.URL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url must not be empty")
	}
	if _, err := url.Parse(c.Server.URL); err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if c.Request.MaxRetries < 0 {
		return fmt.Errorf("request.max_retries must not be negative")
	}
	switch c.UI.Theme {
	case "", "dark", "light", "auto":
	default:
		return fmt.Errorf("ui.theme must be one of dark, light, auto")
	}
	return nil
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the tidechat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tidechat"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions tightens permissions on the config file.
// SECURITY: Config may carry a custom server URL and should stay 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return os.Chmod(path, 0600)
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file, applies defaults for missing values and
// environment overrides on top. A missing file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := ensureSecurePermissions(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config file as TOML with 0600 permissions.
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := EnsureDir(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config for writing: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets environment variables win over the file.
// Supported: TIDECHAT_SERVER_URL, TIDECHAT_WS_URL, TIDECHAT_TIMEOUT_SECS,
// TIDECHAT_MAX_RETRIES, TIDECHAT_LOG_LEVEL, TIDECHAT_THEME.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIDECHAT_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("TIDECHAT_WS_URL"); v != "" {
		cfg.Server.WSURL = v
	}
	if v := os.Getenv("TIDECHAT_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Request.TimeoutSecs = n
		}
	}
	if v := os.Getenv("TIDECHAT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Request.MaxRetries = n
		}
	}
	if v := os.Getenv("TIDECHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TIDECHAT_THEME"); v != "" {
		cfg.UI.Theme = v
	}
}

// =============================================================================
// GLOBAL CONFIG ACCESS
// =============================================================================

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

// Global returns the process-wide config, loading it on first access.
// Load errors fall back to defaults so callers always get a usable config.
func Global() *Config {
	globalMu.RLock()
	if globalConfig != nil {
		defer globalMu.RUnlock()
		return globalConfig
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// SetGlobal replaces the process-wide config.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// ReloadGlobal re-reads the config file into the global slot.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// ResetGlobalForTesting clears the global config. Tests only.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}
