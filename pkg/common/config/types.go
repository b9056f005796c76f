package config

import (
	"fmt"
	"strings"
	"time"
)

type Env string

const (
	DevEnv  Env = "dev"
	StgEnv  Env = "stag"
	ProdEnv Env = "prod"
)

type Config struct {
	Environment Env             `yaml:"env"        validate:"required,oneof=dev prod stag"`
	Server      ServerConfig    `yaml:"server"     validate:"required"`
	Warehouse   WarehouseConfig `yaml:"warehouse"  validate:"required"`
	Database    DatabaseConfig  `yaml:"database"   validate:"required"`
	Tunnel      TunnelConfig    `yaml:"tunnel"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"             validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WarehouseConfig describes the analytical store. URLs holds one or more
// comma-separated base URLs; the first one is the primary, the rest are
// fallbacks sharing the same credential pair.
type WarehouseConfig struct {
	URLs         string        `yaml:"urls"          validate:"required"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"      validate:"required"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// EndpointURLs splits the comma-separated URL list, dropping empty entries.
func (w WarehouseConfig) EndpointURLs() []string {
	parts := strings.Split(w.URLs, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}

type DatabaseConfig struct {
	Host         string        `yaml:"host"          validate:"required"`
	Port         int           `yaml:"port"          validate:"required,min=1,max=65535"`
	User         string        `yaml:"user"          validate:"required"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"          validate:"required"`
	SSLMode      string        `yaml:"ssl_mode"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

// TunnelConfig describes the managed SSH tunnel the relational store is
// reached through. Exactly one of PrivateKeyPath, PrivateKey or Password must
// be set when the tunnel is enabled.
type TunnelConfig struct {
	Enabled          bool            `yaml:"enabled"`
	Host             string          `yaml:"host"              validate:"required_if=Enabled true"`
	Port             int             `yaml:"port"`
	User             string          `yaml:"user"              validate:"required_if=Enabled true"`
	PrivateKeyPath   string          `yaml:"private_key_path"`
	PrivateKey       string          `yaml:"private_key"`
	Passphrase       string          `yaml:"passphrase"`
	Password         string          `yaml:"password"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	RetryAttempts    int             `yaml:"retry_attempts"`
	RetryDelay       time.Duration   `yaml:"retry_delay"`
	Forwards         []ForwardConfig `yaml:"forwards"          validate:"required_if=Enabled true,dive"`
}

// ForwardConfig maps a local listen address to a remote host:port reached
// through the tunnel.
type ForwardConfig struct {
	Name       string `yaml:"name"        validate:"required"`
	LocalAddr  string `yaml:"local_addr"  validate:"required"`
	RemoteAddr string `yaml:"remote_addr" validate:"required"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"   validate:"min=0"`
	Burst int `yaml:"burst" validate:"min=0"`
}
