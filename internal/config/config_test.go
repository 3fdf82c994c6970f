package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/dash"},
		Redis:    RedisConfig{URL: "redis://localhost:6379"},
		Auth:     AuthConfig{JWTSecret: "secret"},
		Realtime: RealtimeConfig{Debounce: 250 * time.Millisecond},
		Metrics: MetricsConfig{
			BucketWidth:       time.Minute,
			BucketCount:       60,
			RecentActivityMax: 20,
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateReportsAllMissingRequiredKeys(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = ""
	cfg.Redis.URL = ""
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, key := range []string{"DASHD_DATABASE_URL", "DASHD_REDIS_URL", "DASHD_AUTH_JWT_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestValidateRejectsBadTunables(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero debounce", func(c *Config) { c.Realtime.Debounce = 0 }},
		{"zero bucket count", func(c *Config) { c.Metrics.BucketCount = 0 }},
		{"zero bucket width", func(c *Config) { c.Metrics.BucketWidth = 0 }},
		{"negative cost", func(c *Config) { c.Metrics.CostPerTokenUSD = -1 }},
		{"oversized activity max", func(c *Config) { c.Metrics.RecentActivityMax = 101 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("DASHD_DATABASE_URL", "postgres://localhost/dash")
	t.Setenv("DASHD_REDIS_URL", "redis://localhost:6379")
	t.Setenv("DASHD_AUTH_JWT_SECRET", "secret")
	t.Setenv("DASHD_REALTIME_OWNER", "u1")
	t.Setenv("DASHD_METRICS_BUCKET_COUNT", "30")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "dashboard.yaml")
	if err := os.WriteFile(cfgFile, nil, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(Options{ConfigFile: cfgFile, EnvFile: filepath.Join(dir, ".env")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen addr wrong: %q", cfg.Server.ListenAddr)
	}
	if cfg.Realtime.Debounce != 250*time.Millisecond {
		t.Errorf("default debounce wrong: %v", cfg.Realtime.Debounce)
	}
	if cfg.Realtime.Owner != "u1" {
		t.Errorf("env owner not applied: %q", cfg.Realtime.Owner)
	}
	if cfg.Metrics.BucketCount != 30 {
		t.Errorf("env bucket count not applied: %d", cfg.Metrics.BucketCount)
	}
	if cfg.Metrics.RealtimeWindowSize != time.Hour {
		t.Errorf("default realtime window wrong: %v", cfg.Metrics.RealtimeWindowSize)
	}
}
