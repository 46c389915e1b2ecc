package testsupport

import (
	"path/filepath"
	"testing"

	"framesel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CacheDir = filepath.Join(base, "thumbs")
	cfgVal.Paths.RegistryPath = filepath.Join(base, "registry", "frames.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Thumbnails.SettleDelayMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSettleDelay sets the pipeline settle delay in milliseconds.
func WithSettleDelay(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Thumbnails.SettleDelayMS = ms
	}
}

// WithEmptyThreshold overrides the parser's empty-blob threshold.
func WithEmptyThreshold(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Parser.EmptyBlobThreshold = bytes
	}
}

// WithEnsuredDirectories creates the config's directories up front.
func WithEnsuredDirectories() ConfigOption {
	return func(b *configBuilder) {
		if err := b.cfg.EnsureDirectories(); err != nil {
			b.t.Fatalf("ensure directories: %v", err)
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}
