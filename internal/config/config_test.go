package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// DEFAULTS
// ===========================================================================

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Council.Models, 3)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Council.Chairman)
	assert.Equal(t, 1, cfg.Council.Cycles)
	assert.Equal(t, "reflection", cfg.Council.SynthesisStrategy)
	assert.Equal(t, 120*time.Second, cfg.Council.ModelTimeout())
	assert.Equal(t, 5, cfg.LLM.MaxToolRounds)
	assert.Equal(t, "127.0.0.1:8400", cfg.Server.Addr())
	assert.Equal(t, "dark", cfg.TUI.Theme)
}

// ===========================================================================
// LOAD
// ===========================================================================

func TestLoadFromPathCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	// File was materialized on disk with the defaults.
	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Council.Models, cfg.Council.Models)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadFromPathReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
council:
  models:
    - "anthropic/claude-sonnet-4"
    - "openai/gpt-4o"
  chairman: "openai/gpt-4o"
  cycles: 2
server:
  port: 9000
`), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic/claude-sonnet-4", "openai/gpt-4o"}, cfg.Council.Models)
	assert.Equal(t, "openai/gpt-4o", cfg.Council.Chairman)
	assert.Equal(t, 2, cfg.Council.Cycles)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadFromPathFillsSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("council:\n  cycles: 3\n"), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	// Explicit value kept, everything else defaulted.
	assert.Equal(t, 3, cfg.Council.Cycles)
	assert.Equal(t, Default().Council.Models, cfg.Council.Models)
	assert.Equal(t, Default().Council.SynthesisStrategy, cfg.Council.SynthesisStrategy)
	assert.Equal(t, Default().LLM.Endpoint, cfg.LLM.Endpoint)
	assert.Equal(t, Default().Logging.Level, cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromPathEnvOverride(t *testing.T) {
	t.Setenv("QUORUM_COUNCIL_CHAIRMAN", "x-ai/grok-3")
	t.Setenv("QUORUM_SERVER_PORT", "9999")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "x-ai/grok-3", cfg.Council.Chairman)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadFromPathExpandsStoragePaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  db_path: \"~/custom/quorum.db\"\n"), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "custom", "quorum.db"), cfg.Storage.DBPath)
}

// ===========================================================================
// VALIDATE
// ===========================================================================

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no models", func(c *Config) { c.Council.Models = nil }, "council.models"},
		{"no chairman", func(c *Config) { c.Council.Chairman = "" }, "council.chairman"},
		{"zero cycles", func(c *Config) { c.Council.Cycles = 0 }, "council.cycles"},
		{"bad strategy", func(c *Config) { c.Council.SynthesisStrategy = "vote" }, "synthesis_strategy"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"bad theme", func(c *Config) { c.TUI.Theme = "solarized" }, "theme"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateAcceptsAllStrategies(t *testing.T) {
	for _, strategy := range []string{"plain", "reflection", "react"} {
		cfg := Default()
		cfg.Council.SynthesisStrategy = strategy
		assert.NoError(t, cfg.Validate())
	}
}

// ===========================================================================
// SAVE / ROUND TRIP
// ===========================================================================

func TestSaveToPathRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Council.Chairman = "deepseek/deepseek-chat"
	cfg.Server.Port = 8500
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "deepseek/deepseek-chat", loaded.Council.Chairman)
	assert.Equal(t, 8500, loaded.Server.Port)
}

func TestKeysComeFromEnvironmentOnly(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("TAVILY_API_KEY", "tvly-test")

	cfg := Default()
	assert.Equal(t, "sk-or-test", cfg.OpenRouterKey())
	assert.Equal(t, "tvly-test", cfg.TavilyKey())

	// Saved config never contains key material.
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.SaveToPath(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-or-test")
	assert.NotContains(t, string(data), "tvly-test")
}

// ===========================================================================
// PATHS
// ===========================================================================

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".quorum"), expandPath("~/.quorum"))
	assert.Equal(t, "/absolute/path", expandPath("/absolute/path"))
	assert.Equal(t, "relative/path", expandPath("relative/path"))
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Storage.DBPath = filepath.Join(base, "data", "conversations.db")
	cfg.Logging.File = filepath.Join(base, "logs", "quorum.log")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(base, "data"))
	assert.DirExists(t, filepath.Join(base, "logs"))
}
