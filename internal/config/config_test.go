package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("APP_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Errorf("app addr: got %q", cfg.App.Addr())
	}
	if cfg.Realtime.Addr() != "0.0.0.0:8081" {
		t.Errorf("realtime addr: got %q", cfg.Realtime.Addr())
	}
	if !cfg.Postgres.UsesMemoryStore() {
		t.Error("empty DSN should select memory store")
	}
	if cfg.Storage.PublicBaseURL != "http://localhost:8080/storage/v1/object/public" {
		t.Errorf("public base url: got %q", cfg.Storage.PublicBaseURL)
	}
	if cfg.App.RequestTimeout() != 30*time.Second {
		t.Errorf("timeout: got %v", cfg.App.RequestTimeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("POSTGRES_DSN", "postgres://bank@localhost/bank")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("REALTIME_SUBSCRIBER_BUFFER", "8")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != "9090" {
		t.Errorf("port: got %q", cfg.App.Port)
	}
	if cfg.Postgres.UsesMemoryStore() {
		t.Error("DSN set, memory store should be off")
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled")
	}
	if cfg.Realtime.SubscriberBuffer != 8 {
		t.Errorf("buffer: got %d", cfg.Realtime.SubscriberBuffer)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("invalid int should fall back, got %d", cfg.Auth.BcryptCost)
	}
}

func TestLoadRejectsDevSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for default secret in production")
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	if _, err := Load(); err == nil {
		t.Fatal("expected REDIS_DB parse error")
	}
}
