package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"framesel/internal/config"
	"framesel/internal/kra"
	"framesel/internal/logging"
	"framesel/internal/registry"
	"framesel/internal/thumbcache"
)

const lockFileName = ".framesel.lock"

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) parseOptions() []kra.Option {
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return nil
	}
	logger, _ := c.ensureLogger()
	return []kra.Option{
		kra.WithEmptyThreshold(cfg.Parser.EmptyBlobThreshold),
		kra.WithLogger(logger),
	}
}

func (c *commandContext) openCache() (*thumbcache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return thumbcache.New(cfg.Paths.CacheDir, logger), nil
}

func (c *commandContext) withRegistry(fn func(*registry.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := registry.Open(cfg)
	if err != nil {
		if errors.Is(err, registry.ErrSchemaMismatch) {
			return fmt.Errorf("%w (run `framesel registry clear --reset`)", err)
		}
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// acquireLock takes the exclusive lock that serializes commands which
// rewrite the cache directory.
func (c *commandContext) acquireLock(purpose string) (*flock.Flock, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(cfg.Paths.CacheDir, lockFileName)
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("cannot %s: another framesel process holds %s", purpose, path)
	}
	return lock, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
