package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeThumbnails()
	c.normalizeMonitor()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("FRAMESEL_CACHE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CacheDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if strings.TrimSpace(c.Paths.RegistryPath) == "" {
		c.Paths.RegistryPath = defaultRegistryPath()
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}

	var err error
	if c.Paths.CacheDir, err = expandPath(strings.TrimSpace(c.Paths.CacheDir)); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.RegistryPath, err = expandPath(strings.TrimSpace(c.Paths.RegistryPath)); err != nil {
		return fmt.Errorf("paths.registry_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeThumbnails() {
	if c.Thumbnails.Size == 0 {
		c.Thumbnails.Size = defaultThumbnailSize
	}
}

func (c *Config) normalizeMonitor() {
	if c.Monitor.PollIntervalMS == 0 {
		c.Monitor.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Monitor.IdleMS == 0 {
		c.Monitor.IdleMS = defaultIdleMS
	}
	if c.Monitor.SnapshotSize == 0 {
		c.Monitor.SnapshotSize = defaultSnapshotSize
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.ComponentLevels) == 0 {
		return
	}
	normalized := make(map[string]string, len(c.Logging.ComponentLevels))
	for component, level := range c.Logging.ComponentLevels {
		key := strings.ToLower(strings.TrimSpace(component))
		if key == "" {
			continue
		}
		normalized[key] = strings.ToLower(strings.TrimSpace(level))
	}
	c.Logging.ComponentLevels = normalized
}
