// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() builds a Config holding every default.
//   - Load layers a YAML file and TALENTSYNC_* environment variables on top.
//   - Validate reports problems wrapped in ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Run lock drivers.
const (
	LockMemory = "memory"
	LockFile   = "file"
	LockRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CacheSize bounds the directory read-through cache.
	CacheSize int `koanf:"cache_size"`

	// ChangeQueueSize bounds the in-memory change-feed queue.
	ChangeQueueSize int `koanf:"change_queue_size"`

	Store   StoreConfig   `koanf:"store"`
	Auth    AuthConfig    `koanf:"auth"`
	Sync    SyncConfig    `koanf:"sync"`
	Redis   RedisConfig   `koanf:"redis"`
	Archive ArchiveConfig `koanf:"archive"`
}

// StoreConfig selects and tunes the persistence backend.
type StoreConfig struct {
	Driver      string `koanf:"driver"`
	DSN         string `koanf:"dsn"`
	MaxConns    int    `koanf:"max_conns"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	Audience  string        `koanf:"audience"`
	Leeway    time.Duration `koanf:"leeway"`
}

// SyncConfig tunes the reconciler, the scheduler and the run lock.
type SyncConfig struct {
	// StatusRetries is how many extra attempts the post-insert status update gets.
	StatusRetries int `koanf:"status_retries"`

	// Interval enables scheduled runs when greater than zero.
	Interval time.Duration `koanf:"interval"`

	// ServiceRoles are granted to the scheduler's service principal.
	ServiceRoles []string `koanf:"service_roles"`

	LockDriver string        `koanf:"lock_driver"`
	LockKey    string        `koanf:"lock_key"`
	LockTTL    time.Duration `koanf:"lock_ttl"`
	LockPath   string        `koanf:"lock_path"`
}

// RedisConfig is used by the redis run lock.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// ArchiveConfig enables S3 upload of run summaries when Bucket is set.
type ArchiveConfig struct {
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		CacheSize:       10_000,
		ChangeQueueSize: 1_024,
		Store: StoreConfig{
			Driver:      DriverMemory,
			MaxConns:    10,
			AutoMigrate: true,
		},
		Auth: AuthConfig{
			Leeway: 30 * time.Second,
		},
		Sync: SyncConfig{
			StatusRetries: 2,
			LockDriver:    LockMemory,
			LockKey:       "talentsync:sync",
			LockTTL:       5 * time.Minute,
		},
		Archive: ArchiveConfig{
			Prefix: "sync-reports",
			Region: "us-east-1",
		},
	}
}

// DefaultServiceRoles is applied when sync.service_roles is empty.
var DefaultServiceRoles = []string{"admin"}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q must be text or json", ErrInvalidConfig, c.LogFormat)
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("%w: store.dsn is required for driver %s", ErrInvalidConfig, c.Store.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("%w: cache_size must be positive", ErrInvalidConfig)
	}
	if c.ChangeQueueSize <= 0 {
		return fmt.Errorf("%w: change_queue_size must be positive", ErrInvalidConfig)
	}
	if c.Sync.StatusRetries < 0 {
		return fmt.Errorf("%w: sync.status_retries must not be negative", ErrInvalidConfig)
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("%w: sync.interval must not be negative", ErrInvalidConfig)
	}
	switch c.Sync.LockDriver {
	case LockMemory:
	case LockFile:
		if strings.TrimSpace(c.Sync.LockPath) == "" {
			return fmt.Errorf("%w: sync.lock_path is required for the file lock", ErrInvalidConfig)
		}
	case LockRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis lock", ErrInvalidConfig)
		}
		if c.Sync.LockTTL <= 0 {
			return fmt.Errorf("%w: sync.lock_ttl must be positive for the redis lock", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sync.lock_driver %q", ErrInvalidConfig, c.Sync.LockDriver)
	}
	return nil
}
