package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		// Keep a stray .env in the working directory out of the picture.
		_ = os.Setenv("TALENTSYNC_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

		convey.Convey("When loading config with defaults only", func() {
			defer clearConfigEnvVars()
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.Sync.StatusRetries, convey.ShouldEqual, 2)
				convey.So(cfg.Sync.ServiceRoles, convey.ShouldResemble, []string{"admin"})
				convey.So(cfg.Auth.Leeway, convey.ShouldEqual, 30*time.Second)
			})
		})

		convey.Convey("When loading config with nested environment variables", func() {
			_ = os.Setenv("TALENTSYNC_ADDR", ":8080")
			_ = os.Setenv("TALENTSYNC_STORE__DRIVER", "sqlite")
			_ = os.Setenv("TALENTSYNC_STORE__DSN", "/tmp/talent.db")
			_ = os.Setenv("TALENTSYNC_SYNC__INTERVAL", "15m")
			_ = os.Setenv("TALENTSYNC_SYNC__STATUS_RETRIES", "5")
			_ = os.Setenv("TALENTSYNC_SYNC__SERVICE_ROLES", "admin,editor")
			_ = os.Setenv("TALENTSYNC_AUTH__JWT_SECRET", "s3cret")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Store.Driver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.Store.DSN, convey.ShouldEqual, "/tmp/talent.db")
				convey.So(cfg.Sync.Interval, convey.ShouldEqual, 15*time.Minute)
				convey.So(cfg.Sync.StatusRetries, convey.ShouldEqual, 5)
				convey.So(cfg.Sync.ServiceRoles, convey.ShouldResemble, []string{"admin", "editor"})
				convey.So(cfg.Auth.JWTSecret, convey.ShouldEqual, "s3cret")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
log_format: json
cache_size: 50
store:
  driver: postgres
  dsn: postgres://localhost/talent
sync:
  lock_driver: redis
redis:
  addr: localhost:6379
`)
			_ = os.Setenv("TALENTSYNC_CONFIG", tmpFile)
			_ = os.Setenv("TALENTSYNC_CACHE_SIZE", "75")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.CacheSize, convey.ShouldEqual, 75)
				convey.So(cfg.Store.Driver, convey.ShouldEqual, config.DriverPostgres)
				convey.So(cfg.Store.MaxConns, convey.ShouldEqual, 10)
				convey.So(cfg.Sync.LockDriver, convey.ShouldEqual, config.LockRedis)
				convey.So(cfg.Redis.Addr, convey.ShouldEqual, "localhost:6379")
			})
		})

		convey.Convey("When a .env file is present", func() {
			dir := t.TempDir()
			envFile := filepath.Join(dir, "talentsync.env")
			content := "TALENTSYNC_LOG_LEVEL=debug\nTALENTSYNC_AUTH__ISSUER=https://project.supabase.co/auth/v1\n"
			convey.So(os.WriteFile(envFile, []byte(content), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("TALENTSYNC_ENV_FILE", envFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then its values are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Auth.Issuer, convey.ShouldEqual, "https://project.supabase.co/auth/v1")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("TALENTSYNC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("TALENTSYNC_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the store driver needs a DSN", func() {
			_ = os.Setenv("TALENTSYNC_STORE__DRIVER", "sqlite")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store.dsn")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("TALENTSYNC_CACHE_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "TALENTSYNC_") && key != "TALENTSYNC_ENV_FILE" {
			_ = os.Unsetenv(key)
		}
	}
}
