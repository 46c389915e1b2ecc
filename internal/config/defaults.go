package config

const (
	defaultLogDir             = "~/.local/share/framesel/logs"
	defaultEmptyBlobThreshold = 100
	defaultSettleDelayMS      = 150
	defaultThumbnailSize      = 128
	defaultPollIntervalMS     = 1000
	defaultIdleMS             = 10000
	defaultSnapshotSize       = 16
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:     defaultCacheDir(),
			RegistryPath: defaultRegistryPath(),
			LogDir:       defaultLogDir,
		},
		Parser: Parser{
			EmptyBlobThreshold: defaultEmptyBlobThreshold,
		},
		Thumbnails: Thumbnails{
			SettleDelayMS: defaultSettleDelayMS,
			Size:          defaultThumbnailSize,
		},
		Monitor: Monitor{
			PollIntervalMS: defaultPollIntervalMS,
			IdleMS:         defaultIdleMS,
			SnapshotSize:   defaultSnapshotSize,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
