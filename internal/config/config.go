// Package config loads server configuration from an optional yaml file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMySQL = "mysql"
	BackendRedis = "redis"
)

// Duration parses yaml values like "250ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	MySQL struct {
		DSN             string   `yaml:"dsn"`
		MaxOpenConns    int      `yaml:"max_open_conns"`
		MaxIdleConns    int      `yaml:"max_idle_conns"`
		ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	} `yaml:"mysql"`

	Redis struct {
		Addr     string `yaml:"addr"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Stock struct {
		// Backend selects the authoritative stock store: "mysql" or "redis".
		Backend string `yaml:"backend"`
	} `yaml:"stock"`

	Reservation struct {
		Compensate   bool     `yaml:"compensate"`
		LockTimeout  Duration `yaml:"lock_timeout"`
		StoreRetries int      `yaml:"store_retries"`
		RetryBackoff Duration `yaml:"retry_backoff"`
	} `yaml:"reservation"`
}

func Default() Config {
	var cfg Config
	cfg.HTTPAddr = ":8080"
	cfg.MySQL.DSN = "root:root@tcp(localhost:3306)/plantcart?parseTime=true"
	cfg.MySQL.MaxOpenConns = 50
	cfg.MySQL.MaxIdleConns = 25
	cfg.MySQL.ConnMaxLifetime = Duration(5 * time.Minute)
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.PoolSize = 100
	cfg.Stock.Backend = BackendMySQL
	cfg.Reservation.LockTimeout = Duration(5 * time.Second)
	cfg.Reservation.StoreRetries = 3
	cfg.Reservation.RetryBackoff = Duration(100 * time.Millisecond)
	return cfg
}

// Load returns defaults overlaid with the yaml file at path (skipped when
// path is empty or missing) and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("STOCK_BACKEND"); v != "" {
		cfg.Stock.Backend = v
	}

	if cfg.Stock.Backend != BackendMySQL && cfg.Stock.Backend != BackendRedis {
		return cfg, fmt.Errorf("unknown stock backend %q", cfg.Stock.Backend)
	}
	return cfg, nil
}
