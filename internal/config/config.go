// Package config provides configuration for the evaluation service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort           int `yaml:"http_port"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Identity
	JWTSecret string `yaml:"jwt_secret"`

	// Assessment model
	LLM LLMConfig `yaml:"llm"`

	// Timeouts
	ModelTimeout    time.Duration `yaml:"-"`
	SessionLockWait time.Duration `yaml:"-"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LLMConfig selects and parameterizes the assessment model provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, genai, mock
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// fileConfig mirrors the YAML layout; durations are given in milliseconds.
type fileConfig struct {
	Config            `yaml:",inline"`
	ModelTimeoutMs    int `yaml:"model_timeout_ms"`
	SessionLockWaitMs int `yaml:"session_lock_wait_ms"`
}

// Transactions take the write lock at BEGIN and wait on the busy timeout.
const sqliteOptions = "mode=rwc&_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=on"

// SQLiteDSN returns the DSN used for a database file at path.
func SQLiteDSN(path string) string {
	return "file:" + path + "?" + sqliteOptions
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:           getEnvInt("HTTP_PORT", 4000),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 100),
		DatabaseURL:        getEnv("DATABASE_URL", SQLiteDSN("medeval.db")),
		JWTSecret:          getEnv("JWT_SECRET", "dev_only_change_me"),
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
			BaseURL:  getEnv("LLM_BASE_URL", "http://localhost:4001"),
			APIKey:   getEnv("LLM_API_KEY", ""),
			Model:    getEnv("LLM_MODEL", "claude-sonnet-4-5-20250929"),
		},
		ModelTimeout:    time.Duration(getEnvInt("MODEL_TIMEOUT_MS", 60000)) * time.Millisecond,
		SessionLockWait: time.Duration(getEnvInt("SESSION_LOCK_WAIT_MS", 15000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
	}
	return cfg
}

// LoadWithFile loads the environment configuration and overlays the YAML file
// at path. Values present in the file win over environment defaults.
func LoadWithFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	fc := fileConfig{Config: *cfg}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	out := fc.Config
	out.ModelTimeout = cfg.ModelTimeout
	out.SessionLockWait = cfg.SessionLockWait
	if fc.ModelTimeoutMs > 0 {
		out.ModelTimeout = time.Duration(fc.ModelTimeoutMs) * time.Millisecond
	}
	if fc.SessionLockWaitMs > 0 {
		out.SessionLockWait = time.Duration(fc.SessionLockWaitMs) * time.Millisecond
	}
	return &out, nil
}

// LeaseTTL is how long a per-session lease may be held before another
// instance is allowed to take it over.
func (c *Config) LeaseTTL() time.Duration {
	return c.ModelTimeout*2 + 30*time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
