// Package config provides configuration management for the trading platform.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Store    StoreConfig
	Rates    RatesConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Logging  LoggingConfig
}

// StoreConfig selects and configures the ledger store backend.
type StoreConfig struct {
	// Backend is one of "file", "redis", "postgres".
	Backend string
	// DataDir holds the JSON documents of the file backend and the CLI
	// session file.
	DataDir string
}

// RatesConfig configures the rate cache and the quote source.
type RatesConfig struct {
	// SourceURL is the base URL of the HTTP quote service. Empty selects
	// the built-in static quote table.
	SourceURL string
	// FreshnessWindow is the maximum age at which a cached rate is used
	// without refetching.
	FreshnessWindow time.Duration
	// FetchTimeout bounds a single call to the quote source.
	FetchTimeout time.Duration
	// RequestsPerSecond throttles calls to the quote source.
	RequestsPerSecond float64
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from a .env file and environment variables.
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "file"),
			DataDir: getEnv("DATA_DIR", "data"),
		},
		Rates: RatesConfig{
			SourceURL:         getEnv("RATE_SOURCE_URL", ""),
			FreshnessWindow:   getEnvAsDuration("RATE_FRESHNESS_WINDOW", 5*time.Minute),
			FetchTimeout:      getEnvAsDuration("RATE_FETCH_TIMEOUT", 5*time.Second),
			RequestsPerSecond: getEnvAsFloat("RATE_REQUESTS_PER_SECOND", 3),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Host:           getEnv("POSTGRES_HOST", "localhost"),
			Port:           getEnv("POSTGRES_PORT", "5432"),
			Database:       getEnv("POSTGRES_DB", "valutatrade"),
			User:           getEnv("POSTGRES_USER", "valutatrade"),
			Password:       getEnv("POSTGRES_PASSWORD", ""),
			MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "file", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q (must be file, redis or postgres)", c.Store.Backend)
	}
	if c.Rates.FreshnessWindow <= 0 {
		return fmt.Errorf("rate freshness window must be positive, got %s", c.Rates.FreshnessWindow)
	}
	if c.Rates.FetchTimeout <= 0 {
		return fmt.Errorf("rate fetch timeout must be positive, got %s", c.Rates.FetchTimeout)
	}
	return nil
}

// PostgresURL builds the connection URL for migrations and pgx.
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
