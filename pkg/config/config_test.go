package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if !cfg.App.IsDev() {
		t.Fatalf("expected dev env by default, got %q", cfg.App.Env)
	}
	if cfg.Storage.NormalizedDriver() != StorageDriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Namespace != "rf" {
		t.Fatalf("unexpected namespace %q", cfg.Storage.Namespace)
	}
	if cfg.Engine.OrderIDMax != 1000 {
		t.Fatalf("expected order id max 1000, got %d", cfg.Engine.OrderIDMax)
	}
	if cfg.Engine.CSVMinGroups != 3 || cfg.Engine.CSVMaxGroups != 7 {
		t.Fatalf("unexpected csv bounds %d..%d", cfg.Engine.CSVMinGroups, cfg.Engine.CSVMaxGroups)
	}
	if got := cfg.Redis.DialTimeout; got != 5*time.Second {
		t.Fatalf("expected dial timeout 5s, got %v", got)
	}
}

func TestLoad_RedisDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStorageDriver, "Redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected redis driver without url to fail")
	}

	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected Redis URL: %q", cfg.Redis.URL)
	}
	if cfg.Storage.IsSQL() {
		t.Fatal("redis driver should not report sql")
	}
}

func TestLoad_SQLDriverRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStorageDriver, StorageDriverSQLite)

	if _, err := Load(); err == nil {
		t.Fatal("expected sqlite driver without dsn to fail")
	}

	t.Setenv(EnvDBDSN, "file:receiptflow.db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.Storage.IsSQL() {
		t.Fatal("sqlite driver should report sql")
	}
	if !cfg.DB.AutoMigrate {
		t.Fatal("auto migrate should default to true")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown driver", env: map[string]string{EnvStorageDriver: "etcd"}},
		{name: "zero order id max", env: map[string]string{EnvOrderIDMax: "0"}},
		{name: "inverted csv bounds", env: map[string]string{EnvCSVMinGroups: "8", EnvCSVMaxGroups: "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvAppEnv, EnvLogLevel, EnvLogWarnStack,
		EnvStorageDriver, EnvStorageNamespace,
		EnvRedisURL, EnvRedisAddr,
		EnvDBDSN, EnvDBAutoMigrate,
		EnvOrderIDMax, EnvCSVMinGroups, EnvCSVMaxGroups,
	} {
		// Setenv registers the restore; envconfig treats a set-but-empty
		// variable as present, so it has to be unset for defaults to apply.
		t.Setenv(key, "unused")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}
