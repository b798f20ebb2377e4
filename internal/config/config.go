// Package config provides configuration management for the streamwire service.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the service starts safely.
//
// The package supports multiple database backends (SQLite and PostgreSQL) and
// Redis for distributed coordination of the detector tick.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Database Configuration:
//   - DATABASE_TYPE: Database type - "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./streamwire.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Detector Configuration:
//   - DETECTOR_INTERVAL: Tick interval (default: 15s)
//   - DETECTOR_WORKERS: Per-tick worker pool size (default: 4)
//   - DETECTOR_USE_LOCK: Acquire a distributed tick lock so overlapping
//     ticks are skipped rather than run concurrently (default: true)
//   - DETECTOR_FETCH_RETRIES: In-tick retries for transient provider
//     failures (default: 2)
//   - DETECTOR_TICK_TIMEOUT: Deadline for one full tick (default: 1m)
//
// Provider Configuration:
//   - TWITCH_CLIENT_ID: Twitch application client id (required for the
//     twitch provider)
//   - TWITCH_API_URL: Override for the Twitch Helix base URL (tests)
//   - DISCORD_WEBHOOK_TIMEOUT: HTTP timeout for Discord webhook posts
//     (default: 10s)
//
// Example usage:
//
//	// Load configuration from environment
//	cfg := config.Load()
//
//	// Validate configuration
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the streamwire service.
// All fields correspond to environment variables that can be set to
// override the default values.
//
// The configuration is loaded using the Load() function and should be
// validated using the Validate() method before use.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Database configuration
	DatabaseType     string // Database type: "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode (disable, require, etc.)

	// Redis configuration for distributed coordination
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// Detector configuration
	DetectorInterval     time.Duration // Time between detection ticks
	DetectorWorkers      int           // Concurrent per-credential passes per tick
	DetectorUseLock      bool          // Whether overlapping ticks are skipped via a distributed lock
	DetectorFetchRetries int           // In-tick retries for transient provider errors
	DetectorTickTimeout  time.Duration // Deadline for one full tick

	// Provider configuration
	TwitchClientID        string        // Twitch application client id
	TwitchAPIURL          string        // Twitch Helix base URL override
	DiscordWebhookTimeout time.Duration // HTTP timeout for webhook posts
}

// Load creates a new Config instance with values loaded from environment
// variables. If an environment variable is not set, the corresponding default
// value is used.
//
// This function does not validate the configuration - call Validate() on the
// returned Config to ensure all required values are properly set and valid.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Database configuration
		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./streamwire.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "streamwire"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		// Redis configuration
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		// Detector configuration
		DetectorInterval:     getDurationEnv("DETECTOR_INTERVAL", 15*time.Second),
		DetectorWorkers:      getIntEnv("DETECTOR_WORKERS", 4),
		DetectorUseLock:      getBoolEnv("DETECTOR_USE_LOCK", true),
		DetectorFetchRetries: getIntEnv("DETECTOR_FETCH_RETRIES", 2),
		DetectorTickTimeout:  getDurationEnv("DETECTOR_TICK_TIMEOUT", time.Minute),

		// Provider configuration
		TwitchClientID:        getEnv("TWITCH_CLIENT_ID", ""),
		TwitchAPIURL:          getEnv("TWITCH_API_URL", "https://api.twitch.tv/helix"),
		DiscordWebhookTimeout: getDurationEnv("DISCORD_WEBHOOK_TIMEOUT", 10*time.Second),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable value or returns a default value.
//
// This function accepts common boolean representations:
//   - "true", "1", "t", "TRUE", "True" -> true
//   - "false", "0", "f", "FALSE", "False" -> false
//   - Any other value or parsing error -> returns defaultValue
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable value or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable value (e.g. "15s",
// "1m") or returns a default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate performs validation on the configuration to ensure all required
// fields are present and all values are valid. It should be called once at
// startup before any component is constructed from the config.
func (c *Config) Validate() error {
	if c.DatabaseType != "sqlite" && c.DatabaseType != "postgres" {
		return fmt.Errorf("DATABASE_TYPE must be sqlite or postgres, got %q", c.DatabaseType)
	}

	if c.DatabaseType == "sqlite" && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required for sqlite")
	}

	if c.DatabaseType == "postgres" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required for postgres")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required for postgres")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required for postgres")
		}
	}

	if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15, got %q", c.RedisDB)
	}

	if c.DetectorInterval < time.Second {
		return fmt.Errorf("DETECTOR_INTERVAL must be at least 1s, got %v", c.DetectorInterval)
	}

	if c.DetectorWorkers < 1 {
		return fmt.Errorf("DETECTOR_WORKERS must be at least 1, got %d", c.DetectorWorkers)
	}

	if c.DetectorFetchRetries < 0 {
		return fmt.Errorf("DETECTOR_FETCH_RETRIES must not be negative, got %d", c.DetectorFetchRetries)
	}

	if c.DetectorTickTimeout < time.Second {
		return fmt.Errorf("DETECTOR_TICK_TIMEOUT must be at least 1s, got %v", c.DetectorTickTimeout)
	}

	return nil
}
