package main

import (
	"os"
	"testing"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONFIG_FILE", "DATABASE_URL", "PAYMENT_PROVIDER_KEY"} {
		prev, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoadConfigNonMemoryModeRequiresValidation(t *testing.T) {
	clearConfigEnv(t)

	if _, err := loadConfig("", false); err == nil {
		t.Fatal("expected an error when DATABASE_URL/PAYMENT_PROVIDER_KEY are both unset outside memory mode")
	}
}

func TestLoadConfigMemoryModeFallsBackToDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := loadConfig("", true)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("expected empty DSN in memory-mode fallback, got %q", cfg.Database.DSN)
	}
}

func TestLoadConfigDSNFlagOverridesEnv(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("DATABASE_URL", "postgres://env")
	os.Setenv("PAYMENT_PROVIDER_KEY", "test-key")

	cfg, err := loadConfig("postgres://flag", false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Database.DSN != "postgres://flag" {
		t.Fatalf("resolved DSN = %q, want flag value to win", cfg.Database.DSN)
	}
}

func TestLoadConfigEnvWhenFlagEmpty(t *testing.T) {
	clearConfigEnv(t)
	os.Setenv("DATABASE_URL", "postgres://env")
	os.Setenv("PAYMENT_PROVIDER_KEY", "test-key")

	cfg, err := loadConfig("", false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Database.DSN != "postgres://env" {
		t.Fatalf("resolved DSN = %q, want DATABASE_URL to carry through", cfg.Database.DSN)
	}
}
