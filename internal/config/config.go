package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	CacheDir     string `toml:"cache_dir"`
	RegistryPath string `toml:"registry_path"`
	LogDir       string `toml:"log_dir"`
}

// Parser contains configuration for the document structure parser.
type Parser struct {
	// EmptyBlobThreshold is the byte size below which a frame blob is treated
	// as blank/default content. Default: 100
	EmptyBlobThreshold int64 `toml:"empty_blob_threshold"`
}

// Thumbnails contains configuration for thumbnail generation.
type Thumbnails struct {
	// SettleDelayMS is the gap enforced between two renderer jobs so the host
	// projection can flush before the next seek. Default: 150
	SettleDelayMS int `toml:"settle_delay_ms"`
	// Size is the bounding box, in pixels, thumbnails are scaled into. Default: 128
	Size int `toml:"size"`
}

// Monitor contains configuration for drawing-activity detection.
type Monitor struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
	IdleMS         int `toml:"idle_ms"`
	SnapshotSize   int `toml:"snapshot_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	ComponentLevels map[string]string `toml:"component_levels"`
	// RetentionDays prunes framesel-*.log files older than this many days
	// from the log directory. Zero disables pruning.
	RetentionDays int `toml:"retention_days"`
}

// Config encapsulates all configuration values for framesel.
//
// Configuration sections by subsystem:
//   - Paths: thumbnail cache root, registry database, log directory
//   - Parser: empty-blob heuristic
//   - Thumbnails: pipeline settle delay and thumbnail size
//   - Monitor: drawing monitor sampling and debounce
//   - Logging: log format, level, and per-component overrides
type Config struct {
	Paths      Paths      `toml:"paths"`
	Parser     Parser     `toml:"parser"`
	Thumbnails Thumbnails `toml:"thumbnails"`
	Monitor    Monitor    `toml:"monitor"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/framesel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("framesel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache root, log directory, and the registry's parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.CacheDir, c.Paths.LogDir}
	if c.Paths.RegistryPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.RegistryPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SettleDelay returns the pipeline settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Thumbnails.SettleDelayMS) * time.Millisecond
}

// PollInterval returns the monitor sampling period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMS) * time.Millisecond
}

// IdleGap returns the monitor debounce gap as a duration.
func (c *Config) IdleGap() time.Duration {
	return time.Duration(c.Monitor.IdleMS) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// dataHome mirrors where the host application keeps per-user data, so the
// thumbnail cache sits next to the host's own settings.
func dataHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	switch runtime.GOOS {
	case "windows":
		if base, ok := os.LookupEnv("APPDATA"); ok && strings.TrimSpace(base) != "" {
			return base
		}
		return home
	case "darwin":
		return filepath.Join(home, "Library", "Application Support")
	}
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return base
	}
	return filepath.Join(home, ".local", "share")
}

func defaultCacheDir() string {
	return filepath.Join(dataHome(), "krita", "frame_selector_thumbs")
}

func defaultRegistryPath() string {
	return filepath.Join(dataHome(), "krita", "frame_selector.db")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
