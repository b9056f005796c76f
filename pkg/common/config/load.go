package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var validate = validator.New()

const (
	defaultWarehouseQueryTimeout = 30 * time.Second
	defaultDatabaseQueryTimeout  = 120 * time.Second
	defaultHandshakeTimeout      = 10 * time.Second
	defaultTunnelRetryAttempts   = 3
	defaultTunnelRetryDelay      = 2 * time.Second
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file. A set variable always wins over the file value.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WAREHOUSE_USERNAME"); v != "" {
		cfg.Warehouse.Username = v
	}
	if v := os.Getenv("WAREHOUSE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("TUNNEL_PASSWORD"); v != "" {
		cfg.Tunnel.Password = v
	}
	if v := os.Getenv("TUNNEL_PASSPHRASE"); v != "" {
		cfg.Tunnel.Passphrase = v
	}
	if v := os.Getenv("TUNNEL_PRIVATE_KEY"); v != "" {
		cfg.Tunnel.PrivateKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Warehouse.QueryTimeout <= 0 {
		cfg.Warehouse.QueryTimeout = defaultWarehouseQueryTimeout
	}
	if cfg.Database.QueryTimeout <= 0 {
		cfg.Database.QueryTimeout = defaultDatabaseQueryTimeout
	}
	if cfg.Tunnel.Port <= 0 {
		cfg.Tunnel.Port = 22
	}
	if cfg.Tunnel.HandshakeTimeout <= 0 {
		cfg.Tunnel.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Tunnel.RetryAttempts <= 0 {
		cfg.Tunnel.RetryAttempts = defaultTunnelRetryAttempts
	}
	if cfg.Tunnel.RetryDelay <= 0 {
		cfg.Tunnel.RetryDelay = defaultTunnelRetryDelay
	}
}
