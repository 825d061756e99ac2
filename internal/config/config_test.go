// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Host != "http://localhost:9601" {
		t.Errorf("default host = %q", cfg.Server.Host)
	}
	if cfg.Context.CharsPerToken != 4 {
		t.Errorf("default chars_per_token = %d, want 4", cfg.Context.CharsPerToken)
	}
	if cfg.Context.MaxFileBytes != 5*1024*1024 {
		t.Errorf("default max_file_bytes = %d, want 5 MiB", cfg.Context.MaxFileBytes)
	}
	if cfg.Context.WarningThresholdChars != 100000 {
		t.Errorf("default warning threshold = %d, want 100000", cfg.Context.WarningThresholdChars)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing config should return defaults, got error %v", err)
	}
	if cfg.Server.Host == "" {
		t.Error("expected defaults for missing file")
	}
}

func TestLoadFromPath_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\nhost = \"http://10.0.0.5:9601\"\napi_key = \"secret\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Server.Host != "http://10.0.0.5:9601" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("api_key = %q", cfg.Server.APIKey)
	}
	// Unset keys fall back to defaults.
	if cfg.Context.CharsPerToken != 4 {
		t.Errorf("chars_per_token = %d, want default 4", cfg.Context.CharsPerToken)
	}
	if cfg.Prompts.ChatPrefix == "" {
		t.Error("chat prefix should default")
	}
}

func TestLoadFromPath_ZeroTemperatureKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[generation]\ntemperature = 0.0\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	// An explicit zero means greedy sampling, not "use the default".
	if cfg.Generation.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", cfg.Generation.Temperature)
	}

	// An absent key still defaults.
	missing := filepath.Join(t.TempDir(), "empty.toml")
	if err := os.WriteFile(missing, []byte("[server]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadFromPath(missing)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Temperature != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", cfg.Generation.Temperature)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Server.Host = "http://example.org:9601"
	cfg.Server.BindingName = "ollama"
	cfg.Context.WarningThresholdChars = 50000

	if err := SaveToPath(cfg, path); err != nil {
		t.Fatalf("SaveToPath failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Server.Host != cfg.Server.Host {
		t.Errorf("host = %q, want %q", loaded.Server.Host, cfg.Server.Host)
	}
	if loaded.Server.BindingName != "ollama" {
		t.Errorf("binding = %q", loaded.Server.BindingName)
	}
	if loaded.Context.WarningThresholdChars != 50000 {
		t.Errorf("threshold = %d", loaded.Context.WarningThresholdChars)
	}

	// Saved config must be owner-only (it can contain the API key).
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config perm = %v, want 0600", info.Mode().Perm())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOLLMS_HOST", "http://envhost:9601")
	t.Setenv("LOLLMS_API_KEY", "env-key")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.Host != "http://envhost:9601" {
		t.Errorf("host = %q", cfg.Server.Host)
	}
	if cfg.Server.APIKey != "env-key" {
		t.Errorf("api_key = %q", cfg.Server.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad host scheme", func(c *Config) { c.Server.Host = "ftp://x" }, true},
		{"bad host", func(c *Config) { c.Server.Host = "not a url" }, true},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 3 }, true},
		{"zero chars per token", func(c *Config) { c.Context.CharsPerToken = 0 }, true},
		{"negative max discussions", func(c *Config) { c.Discussions.MaxDiscussions = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
