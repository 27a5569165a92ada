package config

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultDataDir             = "~/.local/share/earthgazer"
	defaultScratchDir          = "~/.local/share/earthgazer/scratch"
	defaultLogDir              = "~/.local/share/earthgazer/logs"
	defaultDatabaseDriver      = DriverSQLite
	defaultDatabaseFile        = "earthgazer.db"
	defaultGoogleLocation      = "US"
	defaultRequestsPerSecond   = 20
	defaultBurst               = 10
	defaultInitialDelaySeconds = 1
	defaultMaxDelaySeconds     = 120
	defaultMultiplier          = 2
	defaultTimeoutSeconds      = 1200
	defaultOutputFormat        = "tiff"
	defaultWorkers             = 10
	defaultCompositeWorkers    = 1
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNtfyTimeoutSeconds  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
		},
		Database: Database{
			Driver: defaultDatabaseDriver,
		},
		Google: Google{
			Location: defaultGoogleLocation,
		},
		Storage: Storage{
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
		},
		Transfer: Transfer{
			InitialDelaySeconds: defaultInitialDelaySeconds,
			MaxDelaySeconds:     defaultMaxDelaySeconds,
			Multiplier:          defaultMultiplier,
			TimeoutSeconds:      defaultTimeoutSeconds,
		},
		Composite: Composite{
			OutputFormat: defaultOutputFormat,
			Names:        []string{"rgb"},
		},
		Pipeline: Pipeline{
			Workers:          defaultWorkers,
			CompositeWorkers: defaultCompositeWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Platforms: Platforms{
			Monitored: []string{"LANDSAT_8", "SENTINEL_2"},
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
	}
}
