package main

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/talentsync/internal/adapters/repository"
	"github.com/okian/talentsync/internal/bootstrap"
	"github.com/okian/talentsync/internal/config"
	"github.com/okian/talentsync/internal/loadgen"
	"github.com/okian/talentsync/pkg/logger"
)

const (
	envURL     = "TALENTSYNC_URL"
	envToken   = "TALENTSYNC_TOKEN"
	envConfig  = "TALENTSYNC_CONFIG"
	httpTimeout = 2 * time.Minute
)

type globalFlags struct {
	config string
	url    string
	token  string
	json   bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(c.flags.config); path != "" {
			_ = os.Setenv(envConfig, path)
		}
		cfg, err := config.Load(context.Background())
		if err != nil {
			c.configErr = err
			return
		}
		// CLI output goes to stdout; keep logs on stderr and quiet.
		if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(os.Stderr)); err != nil {
			c.configErr = err
			return
		}
		_ = logger.SetLevelString("warn")
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) baseURL() string {
	if u := strings.TrimSpace(c.flags.url); u != "" {
		return u
	}
	if u := os.Getenv(envURL); u != "" {
		return u
	}
	return loadgen.DefaultBaseURL
}

func (c *commandContext) token() string {
	if t := strings.TrimSpace(c.flags.token); t != "" {
		return t
	}
	return os.Getenv(envToken)
}

func (c *commandContext) client() *loadgen.Client {
	return loadgen.NewClient(c.baseURL(), c.token(), httpTimeout)
}

// withStore opens the configured store for the duration of fn.
func (c *commandContext) withStore(cmd *cobra.Command, fn func(repository.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
