package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("expected default database type sqlite, got %s", cfg.DatabaseType)
	}
	if cfg.DetectorInterval != 15*time.Second {
		t.Errorf("expected default detector interval 15s, got %v", cfg.DetectorInterval)
	}
	if cfg.DetectorWorkers != 4 {
		t.Errorf("expected default detector workers 4, got %d", cfg.DetectorWorkers)
	}
	if !cfg.DetectorUseLock {
		t.Error("expected detector lock enabled by default")
	}
	if cfg.DetectorFetchRetries != 2 {
		t.Errorf("expected default fetch retries 2, got %d", cfg.DetectorFetchRetries)
	}
	if cfg.DetectorTickTimeout != time.Minute {
		t.Errorf("expected default tick timeout 1m, got %v", cfg.DetectorTickTimeout)
	}
	if cfg.TwitchAPIURL != "https://api.twitch.tv/helix" {
		t.Errorf("unexpected default twitch api url %s", cfg.TwitchAPIURL)
	}
	if cfg.DiscordWebhookTimeout != 10*time.Second {
		t.Errorf("expected default webhook timeout 10s, got %v", cfg.DiscordWebhookTimeout)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_TYPE", "postgres")
	t.Setenv("DETECTOR_INTERVAL", "30s")
	t.Setenv("DETECTOR_USE_LOCK", "false")
	t.Setenv("DETECTOR_WORKERS", "8")
	t.Setenv("TWITCH_CLIENT_ID", "abc123")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("expected database type postgres, got %s", cfg.DatabaseType)
	}
	if cfg.DetectorInterval != 30*time.Second {
		t.Errorf("expected detector interval 30s, got %v", cfg.DetectorInterval)
	}
	if cfg.DetectorUseLock {
		t.Error("expected detector lock disabled")
	}
	if cfg.DetectorWorkers != 8 {
		t.Errorf("expected detector workers 8, got %d", cfg.DetectorWorkers)
	}
	if cfg.TwitchClientID != "abc123" {
		t.Errorf("expected twitch client id abc123, got %s", cfg.TwitchClientID)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DETECTOR_INTERVAL", "soon")
	t.Setenv("DETECTOR_WORKERS", "many")
	t.Setenv("DETECTOR_USE_LOCK", "maybe")

	cfg := Load()

	if cfg.DetectorInterval != 15*time.Second {
		t.Errorf("expected fallback interval 15s, got %v", cfg.DetectorInterval)
	}
	if cfg.DetectorWorkers != 4 {
		t.Errorf("expected fallback workers 4, got %d", cfg.DetectorWorkers)
	}
	if !cfg.DetectorUseLock {
		t.Error("expected fallback lock enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown database type",
			mutate:  func(c *Config) { c.DatabaseType = "oracle" },
			wantErr: true,
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.DatabaseType = "sqlite"
				c.DatabasePath = ""
			},
			wantErr: true,
		},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.DatabaseType = "postgres"
				c.PostgresHost = ""
			},
			wantErr: true,
		},
		{
			name: "postgres without database name",
			mutate: func(c *Config) {
				c.DatabaseType = "postgres"
				c.PostgresDB = ""
			},
			wantErr: true,
		},
		{
			name:    "redis db out of range",
			mutate:  func(c *Config) { c.RedisDB = "42" },
			wantErr: true,
		},
		{
			name:    "redis db not a number",
			mutate:  func(c *Config) { c.RedisDB = "primary" },
			wantErr: true,
		},
		{
			name:    "sub-second interval",
			mutate:  func(c *Config) { c.DetectorInterval = 100 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.DetectorWorkers = 0 },
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.DetectorFetchRetries = -1 },
			wantErr: true,
		},
		{
			name:    "sub-second tick timeout",
			mutate:  func(c *Config) { c.DetectorTickTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
		})
	}
}
