// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// useTempHome points the config directory at a throwaway home and resets
// the global slot so tests never touch the real user config.
func useTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)
	return home
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.URL == "" {
		t.Error("default server URL must be set")
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", got)
	}
	if cfg.Request.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Request.MaxRetries)
	}
	if got := cfg.RetryBaseDelay(); got != time.Second {
		t.Errorf("RetryBaseDelay = %v, want 1s", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestWebSocketURLDerivation(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		wsURL string
		want  string
	}{
		{"https derives wss", "https://api.tidechat.dev", "", "wss://api.tidechat.dev"},
		{"http derives ws", "http://localhost:8080", "", "ws://localhost:8080"},
		{"trailing slash stripped", "https://api.tidechat.dev/", "", "wss://api.tidechat.dev"},
		{"explicit ws_url wins", "https://api.tidechat.dev", "wss://stream.tidechat.dev", "wss://stream.tidechat.dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.URL = tt.url
			cfg.Server.WSURL = tt.wsURL
			if got := cfg.WebSocketURL(); got != tt.want {
				t.Errorf("WebSocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty server URL must fail validation")
	}

	cfg = Default()
	cfg.Request.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Error("negative retry budget must fail validation")
	}

	cfg = Default()
	cfg.UI.Theme = "neon"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown theme must fail validation")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	useTempHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != Default().Server.URL {
		t.Errorf("Server.URL = %q, want default", cfg.Server.URL)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	useTempHome(t)

	cfg := Default()
	cfg.Server.URL = "https://tide.internal.example"
	cfg.Request.TimeoutSecs = 60
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.URL != "https://tide.internal.example" {
		t.Errorf("Server.URL = %q", loaded.Server.URL)
	}
	if loaded.Request.TimeoutSecs != 60 {
		t.Errorf("TimeoutSecs = %d, want 60", loaded.Request.TimeoutSecs)
	}
}

func TestLoadTightensLoosePermissions(t *testing.T) {
	home := useTempHome(t)

	dir := filepath.Join(home, ".tidechat")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("version = \"1.0.0\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want tightened to 0600", perm)
	}
}

func TestEnvOverrides(t *testing.T) {
	useTempHome(t)
	t.Setenv("TIDECHAT_SERVER_URL", "https://env.example")
	t.Setenv("TIDECHAT_TIMEOUT_SECS", "5")
	t.Setenv("TIDECHAT_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "https://env.example" {
		t.Errorf("Server.URL = %q, want env override", cfg.Server.URL)
	}
	if cfg.Request.TimeoutSecs != 5 {
		t.Errorf("TimeoutSecs = %d, want 5", cfg.Request.TimeoutSecs)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestGlobalConcurrentAccess(t *testing.T) {
	useTempHome(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := Global()
			if cfg == nil {
				t.Error("Global returned nil")
			}
		}()
	}
	wg.Wait()

	// Every caller sees the same instance.
	if Global() != Global() {
		t.Error("Global must return a stable instance")
	}
}
