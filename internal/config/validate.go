package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateParser(); err != nil {
		return err
	}
	if err := c.validateThumbnails(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateParser() error {
	if c.Parser.EmptyBlobThreshold < 0 {
		return errors.New("parser.empty_blob_threshold must be >= 0")
	}
	return nil
}

func (c *Config) validateThumbnails() error {
	if c.Thumbnails.SettleDelayMS < 0 {
		return errors.New("thumbnails.settle_delay_ms must be >= 0")
	}
	if c.Thumbnails.Size <= 0 {
		return errors.New("thumbnails.size must be positive")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if err := ensurePositiveMap(map[string]int{
		"monitor.poll_interval_ms": c.Monitor.PollIntervalMS,
		"monitor.idle_ms":          c.Monitor.IdleMS,
		"monitor.snapshot_size":    c.Monitor.SnapshotSize,
	}); err != nil {
		return err
	}
	if c.Monitor.IdleMS < c.Monitor.PollIntervalMS {
		return errors.New("monitor.idle_ms must be at least monitor.poll_interval_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for component, level := range c.Logging.ComponentLevels {
		if !validLevel(level) {
			return fmt.Errorf("logging.component_levels.%s: unsupported level %q", component, level)
		}
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
