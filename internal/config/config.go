// Package config loads Quorum configuration from ~/.quorum/config.yaml
// with environment variable overrides. API keys are never written to the
// config file; they come from the environment only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for Quorum.
type Config struct {
	Council CouncilConfig `mapstructure:"council" yaml:"council"`
	LLM     GatewayConfig `mapstructure:"llm" yaml:"llm"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	TUI     TUIConfig     `mapstructure:"tui" yaml:"tui"`
}

// CouncilConfig describes the council membership and deliberation defaults.
type CouncilConfig struct {
	// Models lists the OpenRouter identifiers of the council members.
	Models []string `mapstructure:"models" yaml:"models"`

	// Chairman synthesizes the final answer.
	Chairman string `mapstructure:"chairman" yaml:"chairman"`

	// TitleModel generates conversation titles.
	TitleModel string `mapstructure:"title_model" yaml:"title_model"`

	// Cycles is the number of critique/defense pairs per debate.
	Cycles int `mapstructure:"cycles" yaml:"cycles"`

	// SynthesisStrategy is "plain", "reflection", or "react".
	SynthesisStrategy string `mapstructure:"synthesis_strategy" yaml:"synthesis_strategy"`

	// UseReasoning routes tool-capable streaming rounds through the
	// text-based reasoning loop.
	UseReasoning bool `mapstructure:"use_reasoning" yaml:"use_reasoning"`

	// ModelTimeoutSec bounds one model's work in a parallel round.
	ModelTimeoutSec int `mapstructure:"model_timeout_sec" yaml:"model_timeout_sec"`

	// MaxIterations caps reasoning-loop turns.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// ModelTimeout returns the per-model round timeout as a duration.
func (c CouncilConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSec) * time.Second
}

// GatewayConfig configures the OpenRouter gateway.
type GatewayConfig struct {
	// Endpoint is the chat completions URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// MaxToolRounds caps tool-call round trips per completion.
	MaxToolRounds int `mapstructure:"max_tool_rounds" yaml:"max_tool_rounds"`

	// TimeoutSec bounds a single completion request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Timeout returns the request timeout as a duration.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSec) * time.Second
}

// SearchConfig configures the Tavily web search tool.
type SearchConfig struct {
	// MaxResults bounds how many results a search returns (1-10).
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`
}

// ServerConfig configures the HTTP/websocket server.
type ServerConfig struct {
	// Host to bind.
	Host string `mapstructure:"host" yaml:"host"`
	// Port to listen on.
	Port int `mapstructure:"port" yaml:"port"`
	// APIToken, when set, requires a matching bearer token on every
	// request. Empty disables auth.
	APIToken string `mapstructure:"api_token" yaml:"api_token,omitempty"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	// DBPath is the path to the SQLite conversation database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file. Empty logs to stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// TUIConfig configures the terminal interface.
type TUIConfig struct {
	// Theme is the UI theme ("dark" or "light").
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// OpenRouterKey returns the OpenRouter API key from the environment.
func (c *Config) OpenRouterKey() string {
	return os.Getenv("OPENROUTER_API_KEY")
}

// TavilyKey returns the Tavily API key from the environment.
func (c *Config) TavilyKey() string {
	return os.Getenv("TAVILY_API_KEY")
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	quorumDir := filepath.Join(homeDir, ".quorum")

	return &Config{
		Council: CouncilConfig{
			Models: []string{
				"openai/gpt-4o-mini",
				"x-ai/grok-3",
				"deepseek/deepseek-chat",
			},
			Chairman:          "openai/gpt-4o-mini",
			TitleModel:        "google/gemini-2.5-flash",
			Cycles:            1,
			SynthesisStrategy: "reflection",
			UseReasoning:      false,
			ModelTimeoutSec:   120,
			MaxIterations:     3,
		},
		LLM: GatewayConfig{
			Endpoint:      "https://openrouter.ai/api/v1/chat/completions",
			MaxToolRounds: 5,
			TimeoutSec:    120,
		},
		Search: SearchConfig{
			MaxResults: 5,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8400,
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(quorumDir, "conversations.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(quorumDir, "logs", "quorum.log"),
		},
		TUI: TUIConfig{
			Theme: "dark",
		},
	}
}

// Load reads configuration from ~/.quorum/config.yaml, creating it with
// defaults when missing, and merges environment variable overrides.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".quorum", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path. If the file
// doesn't exist it is created with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: QUORUM_COUNCIL_CHAIRMAN, QUORUM_SERVER_PORT
	v.SetEnvPrefix("QUORUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// applyDefaults fills zero values left by sparse config files.
func (c *Config) applyDefaults() {
	defaults := Default()

	if len(c.Council.Models) == 0 {
		c.Council.Models = defaults.Council.Models
	}
	if c.Council.Chairman == "" {
		c.Council.Chairman = defaults.Council.Chairman
	}
	if c.Council.TitleModel == "" {
		c.Council.TitleModel = defaults.Council.TitleModel
	}
	if c.Council.Cycles == 0 {
		c.Council.Cycles = defaults.Council.Cycles
	}
	if c.Council.SynthesisStrategy == "" {
		c.Council.SynthesisStrategy = defaults.Council.SynthesisStrategy
	}
	if c.Council.ModelTimeoutSec == 0 {
		c.Council.ModelTimeoutSec = defaults.Council.ModelTimeoutSec
	}
	if c.Council.MaxIterations == 0 {
		c.Council.MaxIterations = defaults.Council.MaxIterations
	}
	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = defaults.LLM.Endpoint
	}
	if c.LLM.MaxToolRounds == 0 {
		c.LLM.MaxToolRounds = defaults.LLM.MaxToolRounds
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = defaults.LLM.TimeoutSec
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = defaults.Search.MaxResults
	}
	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = defaults.Storage.DBPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.TUI.Theme == "" {
		c.TUI.Theme = defaults.TUI.Theme
	}
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if len(c.Council.Models) == 0 {
		return fmt.Errorf("council.models cannot be empty")
	}
	if c.Council.Chairman == "" {
		return fmt.Errorf("council.chairman cannot be empty")
	}
	if c.Council.Cycles < 1 {
		return fmt.Errorf("council.cycles must be at least 1")
	}

	switch c.Council.SynthesisStrategy {
	case "plain", "reflection", "react":
	default:
		return fmt.Errorf("invalid synthesis_strategy '%s', must be one of: plain, reflection, react", c.Council.SynthesisStrategy)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if c.TUI.Theme != "dark" && c.TUI.Theme != "light" {
		return fmt.Errorf("invalid theme '%s', must be 'dark' or 'light'", c.TUI.Theme)
	}

	return nil
}

// SaveToPath writes the configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// DataDir returns the Quorum data directory path (~/.quorum).
func DataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".quorum")
}

// EnsureDirectories creates the directories Quorum needs at runtime.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		DataDir(),
		filepath.Dir(c.Storage.DBPath),
	}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// writeConfigFile writes a Config to a YAML file using yaml struct tags.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
