package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "TALENTSYNC_"
	envConfigPath  = "TALENTSYNC_CONFIG"
	envDotEnvPath  = "TALENTSYNC_ENV_FILE"
	defaultEnvFile = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TALENTSYNC_CONFIG is set
//  3. env (prefix TALENTSYNC_, "__" separates nested keys)
//
// A .env file (or TALENTSYNC_ENV_FILE) is read first so its values reach
// both the file path lookup and the env layer. Variables already set in
// the process environment win over the .env file.
func Load(_ context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TALENTSYNC_STORE__DRIVER -> store.driver, TALENTSYNC_LOG_LEVEL -> log_level.
	envProvider := env.Provider(envPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if len(cfg.Sync.ServiceRoles) == 0 {
		cfg.Sync.ServiceRoles = append([]string(nil), DefaultServiceRoles...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	if s == "config" || s == "env_file" {
		return ""
	}
	return strings.ReplaceAll(s, "__", ".")
}

func loadDotEnv() error {
	path := os.Getenv(envDotEnvPath)
	if path == "" {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}
