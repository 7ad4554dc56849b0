package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config is the on-disk configuration for edustack.
//
// NOTE: This file may contain secrets (SecretKey, LLM API key). Always keep it chmod 0600.
type Config struct {
	// Port is the listen port for the chat/auth HTTP service.
	Port int `json:"port,omitempty"`
	// Debug enables verbose request logging for local development.
	Debug bool `json:"debug,omitempty"`

	// DatabaseURL is the Postgres connection string used by the auth layer and
	// the provisioning workflow.
	DatabaseURL string `json:"database_url,omitempty"`

	// SecretKey signs bearer tokens issued by the auth endpoints.
	SecretKey string `json:"secret_key,omitempty"`

	// ArchivePath is the local SQLite transcript archive. If empty, the service
	// picks a default under the config directory.
	ArchivePath string `json:"archive_path,omitempty"`

	LLM LLMConfig `json:"llm"`

	// SessionMaxTurns caps the per-session memory buffer. Oldest exchange pairs
	// are evicted once the cap is reached. 0 means the default cap.
	SessionMaxTurns int `json:"session_max_turns,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

// LLMConfig selects and tunes the completion backend. Model and temperature
// are fixed at provider construction time, not per request.
type LLMConfig struct {
	// Provider is "groq", "openai", "openai-compatible" or "anthropic".
	Provider string `json:"provider"`
	// Model is the model identifier sent upstream.
	Model string `json:"model"`
	// Temperature in [0, 2]. Zero uses the provider default.
	Temperature float64 `json:"temperature,omitempty"`
	// BaseURL overrides the API endpoint for OpenAI-compatible backends.
	BaseURL string `json:"base_url,omitempty"`
	// APIKey authenticates against the hosted model. Usually injected via
	// LLM_API_KEY rather than stored on disk.
	APIKey string `json:"api_key,omitempty"`
	// RequestTimeout bounds a single completion call. Zero means 60s.
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
	// MaxTokens caps generated output. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

const (
	DefaultPort            = 8080
	DefaultSessionMaxTurns = 64
	DefaultRequestTimeout  = 60 * time.Second
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.SessionMaxTurns < 0 {
		return fmt.Errorf("invalid session_max_turns: %d", c.SessionMaxTurns)
	}
	switch strings.TrimSpace(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format: %q", c.LogFormat)
	}
	switch strings.TrimSpace(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("invalid llm config: %w", err)
	}
	return nil
}

func (c *LLMConfig) Validate() error {
	if c == nil {
		return errors.New("nil llm config")
	}
	switch strings.TrimSpace(c.Provider) {
	case "", "groq", "openai", "openai-compatible", "anthropic":
	default:
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature out of range: %v", c.Temperature)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("negative request_timeout: %v", c.RequestTimeout)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("negative max_tokens: %d", c.MaxTokens)
	}
	return nil
}

// DefaultConfigPath returns the default config path:
//
//	~/.edustack/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "edustack.config.json"
	}
	return filepath.Join(home, ".edustack", "config.json")
}

// DefaultArchivePath returns the default transcript archive path next to the
// config file.
func DefaultArchivePath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "transcripts.sqlite")
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads the config file when present and falls back to an empty
// config (environment-only operation) when it does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	return nil, err
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ApplyEnv overlays environment variables on top of the loaded config.
// Environment wins over the file so deployments can keep secrets off disk.
func (c *Config) ApplyEnv() {
	if c == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		c.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SECRET_KEY")); v != "" {
		c.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_API_KEY")); v != "" {
		c.LLM.APIKey = v
	}
	// GROQ_API_KEY is accepted for parity with the hosted Groq backend.
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		if v := strings.TrimSpace(os.Getenv("GROQ_API_KEY")); v != "" {
			c.LLM.APIKey = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			c.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEBUG")); v != "" {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
}

// EffectivePort resolves the listen port with defaults applied.
func (c *Config) EffectivePort() int {
	if c == nil || c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

// EffectiveMaxTurns resolves the session buffer cap with defaults applied.
func (c *Config) EffectiveMaxTurns() int {
	if c == nil || c.SessionMaxTurns == 0 {
		return DefaultSessionMaxTurns
	}
	return c.SessionMaxTurns
}
