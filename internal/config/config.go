// Package config loads the application configuration from environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// GitHubConfig holds the GitHub App credentials and webhook settings.
type GitHubConfig struct {
	AppID          int64
	WebhookSecret  string
	PrivateKeyPath string
	// Token is a personal access token used by the CLI instead of an App
	// installation.
	Token string
	// RateLimitPerMinute bounds outbound calls to the GitHub API.
	RateLimitPerMinute int
}

// ModelConfig holds the settings for the review model provider.
type ModelConfig struct {
	APIKey      string
	Name        string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	// RateLimitPerMinute bounds outbound calls to the model API.
	RateLimitPerMinute int
}

// DBConfig holds the connection settings for the optional receipt store.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Config holds the application's configuration values.
type Config struct {
	ServerPort string
	LogLevel   string
	LogFormat  string
	MaxWorkers int

	DiffSizeLimitBytes int

	GitHub GitHubConfig
	Model  ModelConfig

	// DB is nil when no database is configured; review receipts are then
	// not persisted.
	DB *DBConfig
}

// LoadConfig reads configuration from environment variables and a .env file,
// sets sensible defaults and parses typed values. Required fields are
// checked separately by ValidateServer and ValidateCLI because the two
// entrypoints need different credentials.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("MAX_WORKERS", 5)
	v.SetDefault("DIFF_SIZE_LIMIT_BYTES", 50000)
	v.SetDefault("GITHUB_PRIVATE_KEY_PATH", "keys/review-relay-app.private-key.pem")
	v.SetDefault("GITHUB_RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("MODEL_MAX_TOKENS", 4000)
	v.SetDefault("MODEL_TEMPERATURE", 0.0)
	v.SetDefault("MODEL_TIMEOUT", "90s")
	v.SetDefault("MODEL_MAX_RETRIES", 3)
	v.SetDefault("MODEL_RATE_LIMIT_PER_MINUTE", 30)
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Debug("no .env file loaded", "error", err)
		}
	}

	cfg := &Config{
		ServerPort:         v.GetString("SERVER_PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		MaxWorkers:         v.GetInt("MAX_WORKERS"),
		DiffSizeLimitBytes: v.GetInt("DIFF_SIZE_LIMIT_BYTES"),
		GitHub: GitHubConfig{
			AppID:              v.GetInt64("GITHUB_APP_ID"),
			WebhookSecret:      v.GetString("GITHUB_WEBHOOK_SECRET"),
			PrivateKeyPath:     v.GetString("GITHUB_PRIVATE_KEY_PATH"),
			Token:              v.GetString("GITHUB_TOKEN"),
			RateLimitPerMinute: v.GetInt("GITHUB_RATE_LIMIT_PER_MINUTE"),
		},
		Model: ModelConfig{
			APIKey:             v.GetString("ANTHROPIC_API_KEY"),
			Name:               v.GetString("ANTHROPIC_MODEL"),
			MaxTokens:          v.GetInt("MODEL_MAX_TOKENS"),
			Temperature:        v.GetFloat64("MODEL_TEMPERATURE"),
			Timeout:            v.GetDuration("MODEL_TIMEOUT"),
			MaxRetries:         v.GetInt("MODEL_MAX_RETRIES"),
			RateLimitPerMinute: v.GetInt("MODEL_RATE_LIMIT_PER_MINUTE"),
		},
	}

	if host := v.GetString("DB_HOST"); host != "" {
		cfg.DB = &DBConfig{
			Host:            host,
			Port:            v.GetInt("DB_PORT"),
			Username:        v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		}
	}

	return cfg, nil
}

// ValidateServer checks the fields the webhook server cannot run without.
func (c *Config) ValidateServer() error {
	if c.GitHub.AppID == 0 {
		return fmt.Errorf("GITHUB_APP_ID must be set")
	}
	if c.GitHub.WebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET must be set")
	}
	if c.GitHub.PrivateKeyPath == "" {
		return fmt.Errorf("GITHUB_PRIVATE_KEY_PATH must be set")
	}
	return c.validateModel()
}

// ValidateCLI checks the fields the one-shot CLI cannot run without.
func (c *Config) ValidateCLI() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("GITHUB_TOKEN must be set")
	}
	return c.validateModel()
}

func (c *Config) validateModel() error {
	if c.Model.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY must be set")
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("MODEL_MAX_RETRIES must not be negative")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive")
	}
	if c.DiffSizeLimitBytes <= 0 {
		return fmt.Errorf("DIFF_SIZE_LIMIT_BYTES must be positive")
	}
	return nil
}

// ParseLogLevel converts the configured level string into a slog.Level,
// defaulting to info for unrecognized values.
func (c *Config) ParseLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		slog.Warn("unrecognized log level, defaulting to info", "provided", c.LogLevel)
		return slog.LevelInfo
	}
	return level
}
