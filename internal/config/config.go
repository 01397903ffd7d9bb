// Package config loads HustleXP's runtime configuration from an optional
// YAML file plus environment-variable overrides, following the same
// file-then-env layering used elsewhere in the service's lineage.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls the Postgres connection pool.
type DatabaseConfig struct {
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `json:"conn_max_life_secs" yaml:"conn_max_life_secs" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig controls the distributed lock backend (C3).
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"REDIS_ADDR"`
	Password string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"REDIS_DB"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
}

// RetryConfig controls the Transaction Runtime's jittered backoff (C2).
type RetryConfig struct {
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS"`
	BaseMS      int `json:"base_ms" yaml:"base_ms" env:"RETRY_BASE_MS"`
	MaxMS       int `json:"max_ms" yaml:"max_ms" env:"RETRY_MAX_MS"`
}

// WorkerConfig controls the Worker Fleet (C8) and Reaper (C9).
type WorkerConfig struct {
	OutboxWorkerCount int `json:"outbox_worker_count" yaml:"outbox_worker_count" env:"OUTBOX_WORKER_COUNT"`
}

// ProviderConfig holds credentials for the payment provider collaborator.
type ProviderConfig struct {
	PaymentProviderKey   string `json:"payment_provider_key" yaml:"payment_provider_key" env:"PAYMENT_PROVIDER_KEY"`
	SessionEncryptionKey string `json:"session_encryption_key" yaml:"session_encryption_key" env:"SESSION_ENCRYPTION_KEY"`
}

// CorrectionConfig controls the Advisory Correction Engine (C10).
type CorrectionConfig struct {
	SafeModeOverride bool    `json:"safe_mode_override" yaml:"safe_mode_override" env:"SAFE_MODE_OVERRIDE"`
	AIDailyBudgetUSD float64 `json:"ai_daily_budget_usd" yaml:"ai_daily_budget_usd" env:"AI_DAILY_BUDGET_USD"`
}

// Config is the top-level configuration structure for cmd/appserver.
type Config struct {
	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Worker     WorkerConfig     `json:"worker" yaml:"worker"`
	Provider   ProviderConfig   `json:"provider" yaml:"provider"`
	Correction CorrectionConfig `json:"correction" yaml:"correction"`
}

// New returns a Config populated with conservative defaults.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifeSecs: 300,
			MigrateOnStart:  true,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseMS:      50,
			MaxMS:       2000,
		},
		Worker: WorkerConfig{
			OutboxWorkerCount: 4,
		},
	}
}

// Load reads configs/config.yaml (or $CONFIG_FILE) if present, then applies
// environment-variable overrides for every knob enumerated by the
// specification (DATABASE_URL, PAYMENT_PROVIDER_KEY, SESSION_ENCRYPTION_KEY,
// SAFE_MODE_OVERRIDE, OUTBOX_WORKER_COUNT, RETRY_MAX_ATTEMPTS, RETRY_BASE_MS,
// RETRY_MAX_MS, AI_DAILY_BUDGET_USD).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	// envdecode's bool parsing is inconsistent across "1"/"true"/"TRUE"; this
	// knob is operator-facing, so normalize it explicitly.
	if raw := strings.TrimSpace(os.Getenv("SAFE_MODE_OVERRIDE")); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			cfg.Correction.SafeModeOverride = b
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the required knobs the specification marks mandatory.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if strings.TrimSpace(c.Provider.PaymentProviderKey) == "" {
		return fmt.Errorf("config: PAYMENT_PROVIDER_KEY is required")
	}
	return nil
}
