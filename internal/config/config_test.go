package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected default MaxOpenConns 10, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected default retry attempts 5, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseMS != 50 || cfg.Retry.MaxMS != 2000 {
		t.Errorf("unexpected default backoff bounds: %+v", cfg.Retry)
	}
	if cfg.Worker.OutboxWorkerCount != 4 {
		t.Errorf("expected default outbox worker count 4, got %d", cfg.Worker.OutboxWorkerCount)
	}
}

func TestLoadMissingRequiredFieldsFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", "non-existent.yaml")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PAYMENT_PROVIDER_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for missing required knobs")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "non-existent.yaml")
	t.Setenv("DATABASE_URL", "postgres://env-dsn/db")
	t.Setenv("PAYMENT_PROVIDER_KEY", "sk_test_123")
	t.Setenv("RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("OUTBOX_WORKER_COUNT", "9")
	t.Setenv("SAFE_MODE_OVERRIDE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Database.DSN != "postgres://env-dsn/db" {
		t.Errorf("expected DATABASE_URL override, got %q", cfg.Database.DSN)
	}
	if cfg.Retry.MaxAttempts != 7 {
		t.Errorf("expected RETRY_MAX_ATTEMPTS override, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Worker.OutboxWorkerCount != 9 {
		t.Errorf("expected OUTBOX_WORKER_COUNT override, got %d", cfg.Worker.OutboxWorkerCount)
	}
	if !cfg.Correction.SafeModeOverride {
		t.Errorf("expected SAFE_MODE_OVERRIDE true")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
database:
  dsn: "postgres://file-dsn/db"
provider:
  payment_provider_key: "sk_file_123"
worker:
  outbox_worker_count: 11
`
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Database.DSN != "postgres://file-dsn/db" {
		t.Errorf("expected dsn from file, got %q", cfg.Database.DSN)
	}
	if cfg.Worker.OutboxWorkerCount != 11 {
		t.Errorf("expected outbox worker count from file, got %d", cfg.Worker.OutboxWorkerCount)
	}
}
