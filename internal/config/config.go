// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lollms-cli.
//
// Configuration is stored as TOML with sensible defaults, environment
// variable overrides, and validation.
//
// Configuration file location:
//   - ~/.lollms/config.toml
//   - Built-in defaults
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/lollms-cli/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lollms-cli configuration.
type Config struct {
	// Server connection
	Server ServerConfig `toml:"server"`

	// Generation defaults
	Generation GenerationConfig `toml:"generation"`

	// Context assembly
	Context ContextConfig `toml:"context"`

	// Prompt templates per flow
	Prompts PromptsConfig `toml:"prompts"`

	// Discussion persistence
	Discussions DiscussionsConfig `toml:"discussions"`
}

// ServerConfig holds the lollms-server connection settings.
type ServerConfig struct {
	// Host is the base URL of the lollms-server (e.g. http://localhost:9601)
	Host string `toml:"host"`
	// APIKey is sent as the X-API-Key header when non-empty
	APIKey string `toml:"api_key"`
	// BindingName overrides the server's default binding when non-empty
	BindingName string `toml:"binding_name"`
	// ModelName overrides the binding's default model when non-empty
	ModelName string `toml:"model_name"`
	// TimeoutSecs is the request timeout for generation calls
	TimeoutSecs int `toml:"timeout_secs"`
}

// GenerationConfig holds default generation parameters.
type GenerationConfig struct {
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// ContextConfig controls context assembly and size estimation.
type ContextConfig struct {
	// IncludeFileHeaders prepends a "--- File: path ---" line to each file block
	IncludeFileHeaders bool `toml:"include_file_headers"`
	// WarningThresholdChars is the character count above which the size gate
	// asks for confirmation before sending a request
	WarningThresholdChars int `toml:"warning_threshold_chars"`
	// MaxFileBytes is the per-file size ceiling for context inclusion
	MaxFileBytes int64 `toml:"max_file_bytes"`
	// CharsPerToken is the ratio used for rough token estimation.
	// Token counts are never exact; this trades accuracy for zero
	// tokenizer dependency.
	CharsPerToken int `toml:"chars_per_token"`
	// IgnorePatterns are gitignore-style names skipped during bulk adds
	IgnorePatterns []string `toml:"ignore_patterns"`
}

// PromptsConfig holds the system instruction prefix/suffix for each flow.
type PromptsConfig struct {
	ChatPrefix    string `toml:"chat_prefix"`
	ChatSuffix    string `toml:"chat_suffix"`
	CodePrefix    string `toml:"code_prefix"`
	CodeSuffix    string `toml:"code_suffix"`
	CommitPrefix  string `toml:"commit_prefix"`
	CommitSuffix  string `toml:"commit_suffix"`
}

// DiscussionsConfig controls discussion persistence.
type DiscussionsConfig struct {
	// SaveFolder is the directory holding one JSON file per discussion.
	// Relative paths are resolved against the lollms config directory.
	SaveFolder string `toml:"save_folder"`
	// MaxDiscussions limits stored discussions (0 = unlimited)
	MaxDiscussions int `toml:"max_discussions"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a configuration populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "http://localhost:9601",
			TimeoutSecs: 120,
		},
		Generation: GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Context: ContextConfig{
			IncludeFileHeaders:    true,
			WarningThresholdChars: 100000,
			MaxFileBytes:          5 * 1024 * 1024,
			CharsPerToken:         4,
			IgnorePatterns: []string{
				".git",
				"node_modules",
				"__pycache__",
				".venv",
				"vendor",
				"dist",
				"build",
				".idea",
				".vscode",
			},
		},
		Prompts: PromptsConfig{
			ChatPrefix:   "You are a helpful coding assistant.",
			ChatSuffix:   "Answer using the provided project context when relevant.",
			CodePrefix:   "You are an expert programmer. Generate code for the following request.",
			CodeSuffix:   "Return only the code, inside a single fenced code block.",
			CommitPrefix: "Write a concise git commit message for the following diff.",
			CommitSuffix: "Use the imperative mood. First line under 72 characters.",
		},
		Discussions: DiscussionsConfig{
			SaveFolder:     "chats",
			MaxDiscussions: 0,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the lollms configuration directory (~/.lollms).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lollms"), nil
}

// ConfigPath returns the full path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ChatsDir resolves the discussion save folder to an absolute path.
// A relative SaveFolder is placed under the config directory.
func (c *Config) ChatsDir() (string, error) {
	if filepath.IsAbs(c.Discussions.SaveFolder) {
		return c.Discussions.SaveFolder, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Discussions.SaveFolder), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file, fills defaults for missing keys, applies
// environment overrides, and validates. A missing config file is not an
// error; defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	temperatureSet := false
	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		temperatureSet = md.IsDefined("generation", "temperature")
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.fillDefaults(temperatureSet)
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the default config path atomically.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific TOML file atomically.
func SaveToPath(cfg *Config, path string) error {
	var sb strings.Builder
	sb.WriteString("# lollms-cli configuration\n\n")
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// Config may hold an API key, keep it owner-readable only.
	return util.AtomicWriteFile(path, []byte(sb.String()), 0600)
}

// fillDefaults replaces zero values with defaults after a partial decode.
// temperatureSet marks an explicit temperature key in the file: zero is a
// valid value there (greedy sampling), so the default applies only when the
// key was absent.
func (c *Config) fillDefaults(temperatureSet bool) {
	def := Default()

	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.TimeoutSecs <= 0 {
		c.Server.TimeoutSecs = def.Server.TimeoutSecs
	}
	if !temperatureSet && c.Generation.Temperature == 0 {
		c.Generation.Temperature = def.Generation.Temperature
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = def.Generation.MaxTokens
	}
	if c.Context.WarningThresholdChars <= 0 {
		c.Context.WarningThresholdChars = def.Context.WarningThresholdChars
	}
	if c.Context.MaxFileBytes <= 0 {
		c.Context.MaxFileBytes = def.Context.MaxFileBytes
	}
	if c.Context.CharsPerToken <= 0 {
		c.Context.CharsPerToken = def.Context.CharsPerToken
	}
	if c.Context.IgnorePatterns == nil {
		c.Context.IgnorePatterns = def.Context.IgnorePatterns
	}
	if c.Prompts.ChatPrefix == "" {
		c.Prompts.ChatPrefix = def.Prompts.ChatPrefix
	}
	if c.Prompts.ChatSuffix == "" {
		c.Prompts.ChatSuffix = def.Prompts.ChatSuffix
	}
	if c.Prompts.CodePrefix == "" {
		c.Prompts.CodePrefix = def.Prompts.CodePrefix
	}
	if c.Prompts.CodeSuffix == "" {
		c.Prompts.CodeSuffix = def.Prompts.CodeSuffix
	}
	if c.Prompts.CommitPrefix == "" {
		c.Prompts.CommitPrefix = def.Prompts.CommitPrefix
	}
	if c.Prompts.CommitSuffix == "" {
		c.Prompts.CommitSuffix = def.Prompts.CommitSuffix
	}
	if c.Discussions.SaveFolder == "" {
		c.Discussions.SaveFolder = def.Discussions.SaveFolder
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies LOLLMS_* environment variables on top of the
// loaded configuration. Environment always wins over the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LOLLMS_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("LOLLMS_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("LOLLMS_BINDING"); v != "" {
		c.Server.BindingName = v
	}
	if v := os.Getenv("LOLLMS_MODEL"); v != "" {
		c.Server.ModelName = v
	}
	if v := os.Getenv("LOLLMS_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.Server.TimeoutSecs = secs
		}
	}
	if v := os.Getenv("LOLLMS_CHATS_DIR"); v != "" {
		c.Discussions.SaveFolder = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Host != "" {
		u, err := url.Parse(c.Server.Host)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.host",
				Message: "must be a valid http(s) URL",
			})
		}
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "generation.temperature",
			Message: "must be between 0 and 2",
		})
	}
	if c.Context.CharsPerToken < 1 {
		errs = append(errs, ValidationError{
			Field:   "context.chars_per_token",
			Message: "must be at least 1",
		})
	}
	if c.Discussions.MaxDiscussions < 0 {
		errs = append(errs, ValidationError{
			Field:   "discussions.max_discussions",
			Message: "must not be negative",
		})
	}

	return errors.Join(errs...)
}

// IsServerConfigured reports whether a server host has been set.
func (c *Config) IsServerConfigured() bool {
	return c.Server.Host != ""
}
