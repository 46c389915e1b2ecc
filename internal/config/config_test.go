package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"framesel/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_DATA_HOME", filepath.Join(tempHome, "data"))
	t.Setenv("FRAMESEL_CACHE_DIR", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantLogDir := filepath.Join(tempHome, ".local", "share", "framesel", "logs")
	if cfg.Paths.LogDir != wantLogDir {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogDir)
	}
	if !filepath.IsAbs(cfg.Paths.CacheDir) {
		t.Fatalf("expected absolute cache dir, got %q", cfg.Paths.CacheDir)
	}
	if !strings.HasSuffix(cfg.Paths.CacheDir, filepath.Join("krita", "frame_selector_thumbs")) {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
	if cfg.Parser.EmptyBlobThreshold != 100 {
		t.Fatalf("expected empty blob threshold 100, got %d", cfg.Parser.EmptyBlobThreshold)
	}
	if cfg.SettleDelay() != 150*time.Millisecond {
		t.Fatalf("unexpected settle delay: %s", cfg.SettleDelay())
	}
	if cfg.PollInterval() != time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.IdleGap() != 10*time.Second {
		t.Fatalf("unexpected idle gap: %s", cfg.IdleGap())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.LogDir, filepath.Dir(cfg.Paths.RegistryPath)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "framesel.toml")
	t.Setenv("FRAMESEL_CACHE_DIR", "")

	type payload struct {
		Paths struct {
			CacheDir string `toml:"cache_dir"`
		} `toml:"paths"`
		Thumbnails struct {
			SettleDelayMS int `toml:"settle_delay_ms"`
			Size          int `toml:"size"`
		} `toml:"thumbnails"`
		Logging struct {
			Format          string            `toml:"format"`
			ComponentLevels map[string]string `toml:"component_levels"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.CacheDir = filepath.Join(tempDir, "thumbs")
	custom.Thumbnails.SettleDelayMS = 60
	custom.Thumbnails.Size = 96
	custom.Logging.Format = "JSON"
	custom.Logging.ComponentLevels = map[string]string{" ThumbGen ": "DEBUG"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.CacheDir != filepath.Join(tempDir, "thumbs") {
		t.Fatalf("expected cache dir override, got %q", cfg.Paths.CacheDir)
	}
	if cfg.SettleDelay() != 60*time.Millisecond {
		t.Fatalf("expected settle delay 60ms, got %s", cfg.SettleDelay())
	}
	if cfg.Thumbnails.Size != 96 {
		t.Fatalf("expected thumbnail size 96, got %d", cfg.Thumbnails.Size)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.ComponentLevels["thumbgen"] != "debug" {
		t.Fatalf("expected normalized component level, got %v", cfg.Logging.ComponentLevels)
	}
	if cfg.Monitor.SnapshotSize != 16 {
		t.Fatalf("expected default snapshot size, got %d", cfg.Monitor.SnapshotSize)
	}
}

func TestCacheDirEnvOverridesFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "framesel.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\ncache_dir = \"/from/file\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envDir := filepath.Join(tempDir, "env-cache")
	t.Setenv("FRAMESEL_CACHE_DIR", envDir)

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.CacheDir != envDir {
		t.Fatalf("expected env cache dir %q, got %q", envDir, cfg.Paths.CacheDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "negative threshold",
			mutate: func(c *config.Config) { c.Parser.EmptyBlobThreshold = -1 },
			want:   "parser.empty_blob_threshold",
		},
		{
			name:   "negative settle delay",
			mutate: func(c *config.Config) { c.Thumbnails.SettleDelayMS = -5 },
			want:   "thumbnails.settle_delay_ms",
		},
		{
			name:   "idle shorter than poll",
			mutate: func(c *config.Config) { c.Monitor.IdleMS = 500 },
			want:   "monitor.idle_ms",
		},
		{
			name:   "unknown format",
			mutate: func(c *config.Config) { c.Logging.Format = "xml" },
			want:   "logging.format",
		},
		{
			name:   "unknown component level",
			mutate: func(c *config.Config) { c.Logging.ComponentLevels = map[string]string{"kra": "loud"} },
			want:   "logging.component_levels.kra",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "config.toml")
	t.Setenv("FRAMESEL_CACHE_DIR", "")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Thumbnails.SettleDelayMS != 150 {
		t.Fatalf("unexpected sample settle delay: %d", cfg.Thumbnails.SettleDelayMS)
	}
}
