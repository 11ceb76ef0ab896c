// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Ledger
	LedgerPath      string `yaml:"ledger_path"`
	ContractAddress string `yaml:"contract_address"`
	Account         string `yaml:"account"`

	// File paths
	KeyDir      string `yaml:"key_dir"`
	JournalPath string `yaml:"journal_path"`

	// Logging
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	EnableAudit  bool   `yaml:"enable_audit"`
	AuditLogPath string `yaml:"audit_log_path"`

	// Views
	HistoryViewSize int `yaml:"history_view_size"`
	EventBufferSize int `yaml:"event_buffer_size"`

	// Performance
	MaxConcurrency int `yaml:"max_concurrency"`
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Daemon
	ListenAddr      string `yaml:"listen_addr"`
	RefreshSchedule string `yaml:"refresh_schedule"`

	// Rate limiting of mutating operations, per account
	RateLimitTokens     int    `yaml:"rate_limit_tokens"`
	RateLimitRefill     int    `yaml:"rate_limit_refill"`
	RateLimitRefillRate string `yaml:"rate_limit_refill_every"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LedgerPath:          "ledger.json",
		ContractAddress:     "0xsubledger",
		Account:             "",
		KeyDir:              "keys",
		JournalPath:         "history.db",
		LogLevel:            "info",
		LogFile:             "",
		EnableAudit:         true,
		AuditLogPath:        "audit.log",
		HistoryViewSize:     10,
		EventBufferSize:     100,
		MaxConcurrency:      4,
		TimeoutSeconds:      30,
		ListenAddr:          "127.0.0.1:8080",
		RefreshSchedule:     "*/5 * * * *",
		RateLimitTokens:     10,
		RateLimitRefill:     1,
		RateLimitRefillRate: "6s",
	}
}

// LoadConfig loads configuration from file, creating it with defaults if it does not exist,
// then applies SUBLEDGER_* environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err):
		if err := SaveConfig(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	envOverride(&c.LedgerPath, "SUBLEDGER_LEDGER_PATH")
	envOverride(&c.ContractAddress, "SUBLEDGER_CONTRACT_ADDRESS")
	envOverrideAllowEmpty(&c.Account, "SUBLEDGER_ACCOUNT")
	envOverride(&c.KeyDir, "SUBLEDGER_KEY_DIR")
	envOverrideAllowEmpty(&c.JournalPath, "SUBLEDGER_JOURNAL_PATH")
	envOverride(&c.LogLevel, "SUBLEDGER_LOG_LEVEL")
	envOverrideAllowEmpty(&c.LogFile, "SUBLEDGER_LOG_FILE")
	envOverrideBool(&c.EnableAudit, "SUBLEDGER_ENABLE_AUDIT")
	envOverride(&c.AuditLogPath, "SUBLEDGER_AUDIT_LOG_PATH")
	envOverride(&c.ListenAddr, "SUBLEDGER_LISTEN_ADDR")
	envOverrideAllowEmpty(&c.RefreshSchedule, "SUBLEDGER_REFRESH_SCHEDULE")
	envOverride(&c.RateLimitRefillRate, "SUBLEDGER_RATE_LIMIT_REFILL_EVERY")
	for _, o := range []struct {
		field *int
		key   string
	}{
		{&c.HistoryViewSize, "SUBLEDGER_HISTORY_VIEW_SIZE"},
		{&c.EventBufferSize, "SUBLEDGER_EVENT_BUFFER_SIZE"},
		{&c.MaxConcurrency, "SUBLEDGER_MAX_CONCURRENCY"},
		{&c.TimeoutSeconds, "SUBLEDGER_TIMEOUT_SECONDS"},
		{&c.RateLimitTokens, "SUBLEDGER_RATE_LIMIT_TOKENS"},
		{&c.RateLimitRefill, "SUBLEDGER_RATE_LIMIT_REFILL"},
	} {
		if err := envOverrideInt(o.field, o.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("contract_address is required")
	}
	if c.KeyDir == "" {
		return fmt.Errorf("key_dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, fatal, got %q", c.LogLevel)
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return fmt.Errorf("audit_log_path is required when enable_audit is set")
	}
	if c.HistoryViewSize <= 0 {
		return fmt.Errorf("history_view_size must be positive")
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("event_buffer_size must be positive")
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if c.RefreshSchedule != "" {
		if _, err := ParseSchedule(c.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh_schedule %q: %w", c.RefreshSchedule, err)
		}
	}
	if c.RateLimitTokens <= 0 {
		return fmt.Errorf("rate_limit_tokens must be positive")
	}
	if c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate_limit_refill must be positive")
	}
	if _, err := c.RefillEvery(); err != nil {
		return err
	}
	return nil
}

// Timeout is the per-workflow deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RefillEvery parses the rate limiter refill period.
func (c *Config) RefillEvery() (time.Duration, error) {
	d, err := time.ParseDuration(c.RateLimitRefillRate)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("rate_limit_refill_every must be a positive duration, got %q", c.RateLimitRefillRate)
	}
	return d, nil
}

// ParseSchedule parses a standard five-field cron spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(spec)
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}
