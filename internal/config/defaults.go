package config

const (
	defaultLogDir               = "~/.local/share/scanmaster/logs"
	defaultExportDir            = "~/.local/share/scanmaster/exports"
	defaultDataDir              = "~/.local/share/scanmaster"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultBackendURL           = "http://127.0.0.1:7491"
	defaultBackendTimeout       = 60
	defaultMaxUploadSize        = "10MB"
	defaultMaxUploadBytes       = 10 * 1000 * 1000
	defaultConcurrencyLimit     = 2
	defaultCallTimeoutSeconds   = 120
	defaultNotificationTTL      = 3
	defaultNtfyTimeout          = 10
	defaultGeneratorModel       = "gemini-2.5-flash-image"
	defaultGeneratorTimeout     = 60
	defaultMockBackendBind      = "127.0.0.1:7491"
	defaultMockBackendMinDelay  = 100
	defaultMockBackendMaxDelay  = 1500
	defaultMockBackendFailRate  = 0.02
	defaultMockBackendJPEGQual  = 90
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultConfigPath           = "~/.config/scanmaster/config.toml"
	defaultProjectConfigName    = "scanmaster.toml"
	defaultBackendDatabaseName  = "backend.db"
	defaultServeLockName        = "scanmaster.lock"
	defaultNotificationsEnabled = true
)

// Producer names accepted by backend.producer.
const (
	ProducerCombined = "combined"
	ProducerSeparate = "separate"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			ExportDir: defaultExportDir,
			DataDir:   defaultDataDir,
			APIBind:   defaultAPIBind,
		},
		Backend: Backend{
			BaseURL:        defaultBackendURL,
			RequestTimeout: defaultBackendTimeout,
			MaxUploadSize:  defaultMaxUploadSize,
			Producer:       ProducerCombined,
		},
		Workflow: Workflow{
			ConcurrencyLimit:   defaultConcurrencyLimit,
			CallTimeoutSeconds: defaultCallTimeoutSeconds,
		},
		Notifications: Notifications{
			TTLSeconds:     defaultNotificationTTL,
			RequestTimeout: defaultNtfyTimeout,
			Queue:          defaultNotificationsEnabled,
			Errors:         defaultNotificationsEnabled,
		},
		Generator: Generator{
			Model:          defaultGeneratorModel,
			TimeoutSeconds: defaultGeneratorTimeout,
		},
		MockBackend: MockBackend{
			Bind:        defaultMockBackendBind,
			MinDelayMS:  defaultMockBackendMinDelay,
			MaxDelayMS:  defaultMockBackendMaxDelay,
			FailureRate: defaultMockBackendFailRate,
			JPEGQuality: defaultMockBackendJPEGQual,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
