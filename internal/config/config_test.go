package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "subledger.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.MaxConcurrency != 4 || cfg.Timeout() != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subledger.yaml")
	data := []byte("account: 0xalice\nmax_concurrency: 8\nrefresh_schedule: \"@hourly\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUBLEDGER_LOG_LEVEL", "debug")
	t.Setenv("SUBLEDGER_HISTORY_VIEW_SIZE", "25")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Account != "0xalice" || cfg.MaxConcurrency != 8 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LedgerPath != "ledger.json" {
		t.Errorf("unset fields should keep defaults, got %q", cfg.LedgerPath)
	}
	if cfg.LogLevel != "debug" || cfg.HistoryViewSize != 25 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	t.Setenv("SUBLEDGER_MAX_CONCURRENCY", "many")
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("expected an error for a non-numeric override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad schedule", func(c *Config) { c.RefreshSchedule = "every now and then" }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
		{"audit without path", func(c *Config) { c.AuditLogPath = "" }},
		{"bad refill period", func(c *Config) { c.RateLimitRefillRate = "-1s" }},
		{"missing contract", func(c *Config) { c.ContractAddress = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Errorf("expected a validation error")
			}
		})
	}

	c := DefaultConfig()
	c.RefreshSchedule = ""
	if err := c.Validate(); err != nil {
		t.Errorf("an empty schedule disables refresh and should validate: %v", err)
	}
}
