// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/quietchat/internal/guard"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, EngineOllama, cfg.Engine.Kind)
	assert.Equal(t, DefaultOllamaURL, cfg.Engine.BaseURL)
	assert.False(t, cfg.Privacy.PersistChat)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout())
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := writeConfig(t, `
[engine]
kind = "openai"
api_key = "sk-local"

[guard]
allowed_hosts = ["models.example.org"]
allow_onion = false
inspection_policy = "wipe"

[privacy]
auto_delete = true
persist_chat = true

[ui]
theme = "light"
`)
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, EngineOpenAI, cfg.Engine.Kind)
	assert.Equal(t, "http://127.0.0.1:1234/v1", cfg.Engine.BaseURL, "openai default base url")
	assert.Equal(t, []string{"models.example.org"}, cfg.Guard.AllowedHosts)
	assert.False(t, cfg.Guard.AllowOnion)
	assert.True(t, cfg.Guard.AllowPrivate, "unset keys keep defaults")
	assert.True(t, cfg.Privacy.AutoDelete)
	assert.False(t, cfg.Privacy.PersistChat, "persistence is forced off")
	assert.Equal(t, "light", cfg.UI.Theme)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	want := Default()
	want.SetDefaults()
	assert.Equal(t, want.Engine, cfg.Engine)
	assert.Equal(t, DefaultOllamaURL, cfg.Engine.BaseURL)
}

func TestSetDefaults_BaseURLPerKind(t *testing.T) {
	tests := []struct {
		kind, baseURL, want string
	}{
		{"", "", DefaultOllamaURL},
		{"ollama", "", DefaultOllamaURL},
		{"OpenAI", "", DefaultOpenAIURL},
		{"openai", "http://127.0.0.1:8080/v1", "http://127.0.0.1:8080/v1"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Engine.Kind = tt.kind
		cfg.Engine.BaseURL = tt.baseURL
		cfg.SetDefaults()
		assert.Equal(t, tt.want, cfg.Engine.BaseURL, "kind %q", tt.kind)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	t.Setenv("QUIETCHAT_BASE_URL", "http://localhost:9999")
	t.Setenv("QUIETCHAT_ALLOWED_HOSTS", "a.example,b.example")
	t.Setenv("QUIETCHAT_AUTO_DELETE", "true")

	path := writeConfig(t, "[engine]\nbase_url = \"http://127.0.0.1:1\"\n")
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999", cfg.Engine.BaseURL)
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Guard.AllowedHosts)
	assert.True(t, cfg.Privacy.AutoDelete)
}

func TestLoadFromPath_BadTOML(t *testing.T) {
	_, err := LoadFromPath(writeConfig(t, "[engine\nkind = "))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{"engine kind", func(c *Config) { c.Engine.Kind = "llamafile" }, "engine.kind"},
		{"relative url", func(c *Config) { c.Engine.BaseURL = "/api" }, "engine.base_url"},
		{"ftp url", func(c *Config) { c.Engine.BaseURL = "ftp://host" }, "engine.base_url"},
		{"audit capacity", func(c *Config) { c.Guard.AuditCapacity = 0 }, "guard.audit_capacity"},
		{"scrub interval", func(c *Config) { c.Guard.ScrubSeconds = -1 }, "guard.scrub_interval_seconds"},
		{"policy", func(c *Config) { c.Guard.InspectionPolicy = "explode" }, "guard.inspection_policy"},
		{"host pattern", func(c *Config) { c.Guard.AllowedHosts = []string{"http://x/y"} }, "guard.allowed_hosts"},
		{"idle", func(c *Config) { c.Privacy.IdleTimeoutMinutes = 0 }, "privacy.idle_timeout_minutes"},
		{"theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDefaults()
			tt.edit(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestGuardConfig(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	cfg.Guard.ScrubSeconds = 7
	cfg.Guard.InspectionPolicy = "wipe"

	g := cfg.GuardConfig()
	assert.Equal(t, DefaultOllamaURL, g.Origin)
	assert.Equal(t, 7*time.Second, g.ScrubInterval)
	assert.Equal(t, guard.PolicyWipe, g.Inspection.Policy)
	assert.Equal(t, guard.DefaultDriftThreshold, g.Inspection.DriftThreshold)
}

func TestString_RedactsAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Engine.APIKey = "sk-secret"
	out := cfg.String()
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "sk-secret", cfg.Engine.APIKey)
}
