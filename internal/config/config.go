// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/jeranaias/quietchat/internal/guard"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Engine kinds.
const (
	EngineOllama = "ollama"
	EngineOpenAI = "openai"
)

// Base URLs used when engine.base_url is unset.
const (
	DefaultOllamaURL = "http://127.0.0.1:11434"
	DefaultOpenAIURL = "http://127.0.0.1:1234/v1"
)

// Config is the complete quietchat configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Guard   GuardConfig   `toml:"guard"`
	Privacy PrivacyConfig `toml:"privacy"`
	UI      UIConfig      `toml:"ui"`

	// DataDir holds the storage surfaces the guard scrubs.
	DataDir string `toml:"data_dir" env:"QUIETCHAT_DATA_DIR"`
	// ExportDir is where exports are written. Empty means the working directory.
	ExportDir string `toml:"export_dir" env:"QUIETCHAT_EXPORT_DIR"`
}

// EngineConfig selects the local inference server.
type EngineConfig struct {
	// Kind is "ollama" or "openai" (any OpenAI-compatible local server).
	Kind    string `toml:"kind" env:"QUIETCHAT_ENGINE"`
	BaseURL string `toml:"base_url" env:"QUIETCHAT_BASE_URL"`
	// APIKey is sent to OpenAI-compatible servers that require one.
	APIKey string `toml:"api_key" env:"QUIETCHAT_API_KEY"`
	// DefaultModel is preselected on the model screen.
	DefaultModel string `toml:"default_model" env:"QUIETCHAT_MODEL"`
	// KeepAlive is how long Ollama keeps a warmed model resident.
	KeepAlive      string `toml:"keep_alive" env:"QUIETCHAT_KEEP_ALIVE"`
	TimeoutSeconds int    `toml:"timeout_seconds" env:"QUIETCHAT_TIMEOUT_SECONDS"`
}

// GuardConfig configures the privacy guard.
type GuardConfig struct {
	AllowedHosts     []string `toml:"allowed_hosts" env:"QUIETCHAT_ALLOWED_HOSTS" env-separator:","`
	AllowPrivate     bool     `toml:"allow_private" env:"QUIETCHAT_ALLOW_PRIVATE"`
	AllowOnion       bool     `toml:"allow_onion" env:"QUIETCHAT_ALLOW_ONION"`
	AuditCapacity    int      `toml:"audit_capacity" env:"QUIETCHAT_AUDIT_CAPACITY"`
	AllowedDatabases []string `toml:"allowed_databases"`
	ScrubSeconds     int      `toml:"scrub_interval_seconds" env:"QUIETCHAT_SCRUB_SECONDS"`
	// InspectionPolicy is "ignore" or "wipe".
	InspectionPolicy string `toml:"inspection_policy" env:"QUIETCHAT_INSPECTION_POLICY"`
}

// PrivacyConfig holds chat retention settings.
type PrivacyConfig struct {
	AutoDelete         bool `toml:"auto_delete" env:"QUIETCHAT_AUTO_DELETE"`
	IdleTimeoutMinutes int  `toml:"idle_timeout_minutes" env:"QUIETCHAT_IDLE_MINUTES"`
	// PersistChat is always false after Load.
	PersistChat bool `toml:"persist_chat"`
}

// UIConfig holds display preferences.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme        string `toml:"theme" env:"QUIETCHAT_THEME"`
	SystemPrompt string `toml:"system_prompt"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the shipped configuration. The base URL depends on the
// engine kind and is filled in by SetDefaults.
func Default() *Config {
	dataDir := ".quietchat"
	if dir, err := ConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "data")
	}
	return &Config{
		Engine: EngineConfig{
			Kind:           EngineOllama,
			KeepAlive:      "30m",
			TimeoutSeconds: 30,
		},
		Guard: GuardConfig{
			AllowedHosts:     append([]string(nil), guard.DefaultAllowedHosts...),
			AllowPrivate:     true,
			AllowOnion:       true,
			AuditCapacity:    guard.DefaultAuditCapacity,
			AllowedDatabases: append([]string(nil), guard.DefaultAllowedDatabases...),
			ScrubSeconds:     int(guard.DefaultScrubInterval / time.Second),
			InspectionPolicy: string(guard.PolicyIgnore),
		},
		Privacy: PrivacyConfig{
			AutoDelete:         false,
			IdleTimeoutMinutes: 10,
		},
		UI: UIConfig{
			Theme: "auto",
		},
		DataDir: dataDir,
	}
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Engine.Kind == "" {
		c.Engine.Kind = d.Engine.Kind
	}
	c.Engine.Kind = strings.ToLower(strings.TrimSpace(c.Engine.Kind))
	if c.Engine.BaseURL == "" {
		switch c.Engine.Kind {
		case EngineOpenAI:
			c.Engine.BaseURL = DefaultOpenAIURL
		default:
			c.Engine.BaseURL = DefaultOllamaURL
		}
	}
	if c.Engine.KeepAlive == "" {
		c.Engine.KeepAlive = d.Engine.KeepAlive
	}
	if c.Engine.TimeoutSeconds == 0 {
		c.Engine.TimeoutSeconds = d.Engine.TimeoutSeconds
	}
	if c.Guard.AuditCapacity == 0 {
		c.Guard.AuditCapacity = d.Guard.AuditCapacity
	}
	if c.Guard.AllowedDatabases == nil {
		c.Guard.AllowedDatabases = d.Guard.AllowedDatabases
	}
	if c.Guard.ScrubSeconds == 0 {
		c.Guard.ScrubSeconds = d.Guard.ScrubSeconds
	}
	if c.Guard.InspectionPolicy == "" {
		c.Guard.InspectionPolicy = d.Guard.InspectionPolicy
	}
	if c.Privacy.IdleTimeoutMinutes == 0 {
		c.Privacy.IdleTimeoutMinutes = d.Privacy.IdleTimeoutMinutes
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	c.Privacy.PersistChat = false
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns ~/.quietchat.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".quietchat"), nil
}

// ConfigPath returns the path of the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600. It may hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file if present, then .env and the
// environment. A missing file is not an error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		path = ""
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load with an explicit file. An empty path skips the file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadTOML(cfg, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Engine.Kind {
	case EngineOllama, EngineOpenAI:
	default:
		add("engine.kind", "invalid engine '%s', must be one of: ollama, openai", c.Engine.Kind)
	}
	if u, err := url.Parse(c.Engine.BaseURL); err != nil {
		add("engine.base_url", "invalid URL: %v", err)
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("engine.base_url", "must be an absolute http(s) URL, got '%s'", c.Engine.BaseURL)
	}
	if c.Engine.TimeoutSeconds < 0 {
		add("engine.timeout_seconds", "cannot be negative")
	}

	if c.Guard.AuditCapacity < 1 {
		add("guard.audit_capacity", "must be at least 1, got %d", c.Guard.AuditCapacity)
	}
	if c.Guard.ScrubSeconds < 1 {
		add("guard.scrub_interval_seconds", "must be at least 1, got %d", c.Guard.ScrubSeconds)
	}
	if _, err := guard.ParseDetectionPolicy(c.Guard.InspectionPolicy); err != nil {
		add("guard.inspection_policy", "%v", err)
	}
	for _, h := range c.Guard.AllowedHosts {
		if strings.TrimSpace(h) == "" || strings.Contains(h, "/") {
			add("guard.allowed_hosts", "invalid host pattern '%s'", h)
		}
	}

	if c.Privacy.IdleTimeoutMinutes < 1 {
		add("privacy.idle_timeout_minutes", "must be at least 1, got %d", c.Privacy.IdleTimeoutMinutes)
	}

	switch c.UI.Theme {
	case "auto", "dark", "light":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// GuardConfig builds the guard settings with the engine URL as origin.
func (c *Config) GuardConfig() guard.Config {
	g := guard.DefaultConfig(c.Engine.BaseURL)
	g.AllowedHosts = c.Guard.AllowedHosts
	g.AllowPrivate = c.Guard.AllowPrivate
	g.AllowOnion = c.Guard.AllowOnion
	g.AuditCapacity = c.Guard.AuditCapacity
	g.AllowedDatabases = c.Guard.AllowedDatabases
	g.ScrubInterval = time.Duration(c.Guard.ScrubSeconds) * time.Second
	if p, err := guard.ParseDetectionPolicy(c.Guard.InspectionPolicy); err == nil {
		g.Inspection.Policy = p
	}
	return g
}

// Timeout is the engine request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// IdleTimeout is the auto-delete idle period.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Privacy.IdleTimeoutMinutes) * time.Minute
}

// String renders the config as TOML with the API key redacted.
func (c *Config) String() string {
	safe := *c
	if safe.Engine.APIKey != "" {
		safe.Engine.APIKey = "[REDACTED]"
	}
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return sb.String()
}
