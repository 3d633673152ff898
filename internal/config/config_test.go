package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Stock.Backend != BackendMySQL {
		t.Errorf("expected mysql backend default, got %q", cfg.Stock.Backend)
	}
	if time.Duration(cfg.Reservation.LockTimeout) != 5*time.Second {
		t.Errorf("expected 5s lock timeout default, got %v", time.Duration(cfg.Reservation.LockTimeout))
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
http_addr: ":9090"
stock:
  backend: redis
reservation:
  compensate: true
  lock_timeout: 250ms
  store_retries: 1
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("expected :9090, got %q", cfg.HTTPAddr)
	}
	if cfg.Stock.Backend != BackendRedis {
		t.Errorf("expected redis backend, got %q", cfg.Stock.Backend)
	}
	if !cfg.Reservation.Compensate {
		t.Error("expected compensate enabled")
	}
	if time.Duration(cfg.Reservation.LockTimeout) != 250*time.Millisecond {
		t.Errorf("expected 250ms lock timeout, got %v", time.Duration(cfg.Reservation.LockTimeout))
	}
	if cfg.Reservation.StoreRetries != 1 {
		t.Errorf("expected 1 store retry, got %d", cfg.Reservation.StoreRetries)
	}

	// Untouched fields keep their defaults.
	if cfg.MySQL.MaxOpenConns != 50 {
		t.Errorf("expected default pool size, got %d", cfg.MySQL.MaxOpenConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MYSQL_DSN", "app:secret@tcp(db:3306)/plantcart?parseTime=true")
	t.Setenv("STOCK_BACKEND", "redis")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MySQL.DSN != "app:secret@tcp(db:3306)/plantcart?parseTime=true" {
		t.Errorf("env override not applied: %q", cfg.MySQL.DSN)
	}
	if cfg.Stock.Backend != BackendRedis {
		t.Errorf("env override not applied: %q", cfg.Stock.Backend)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STOCK_BACKEND", "cassandra")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
