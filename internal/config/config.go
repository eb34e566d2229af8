package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration
type Config struct {
	// App
	LogLevel  string `split_words:"true" default:"info" validate:"oneof=debug info warn error"`
	LogPretty bool   `split_words:"true" default:"false"`

	// GitHub
	GithubTokenEnv string `split_words:"true" default:"GITHUB_TOKEN"`

	// Storage
	StorageType string `split_words:"true" default:"sqlite" validate:"oneof=sqlite postgres"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./repomonitor.db"`
	PostgresURL string `split_words:"true"`

	// Redis (realtime notifications; optional)
	RedisURL string `split_words:"true"`

	// API server
	APIHost  string `envconfig:"API_HOST" default:"localhost"`
	APIPort  string `envconfig:"API_PORT" default:"8080"`
	APIToken string `envconfig:"API_TOKEN"`

	// CLI
	APIEndpoint string `envconfig:"API_ENDPOINT" default:"http://localhost:8080"`

	// Aggregation
	RefreshInterval time.Duration `split_words:"true" default:"5m" validate:"gt=0"`
	BatchSize       int           `split_words:"true" default:"2" validate:"gt=0"`
	InterBatchDelay time.Duration `split_words:"true" default:"2s" validate:"gte=0"`

	// Rate limiting (per credential)
	GithubRateLimit int `split_words:"true" default:"80" validate:"gt=0"` // requests per minute
	GithubBurst     int `split_words:"true" default:"10" validate:"gt=0"`

	// Issue count cache
	CountCacheSize int           `split_words:"true" default:"1024" validate:"gt=0"`
	CountCacheTTL  time.Duration `envconfig:"COUNT_CACHE_TTL" default:"30s" validate:"gte=0"`
}

// Load loads the configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	// Ignore error if no .env exists
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("env load: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	if cfg.StorageType == "postgres" && cfg.PostgresURL == "" {
		return nil, &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}

	return &cfg, nil
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return c.APIHost + ":" + c.APIPort
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
