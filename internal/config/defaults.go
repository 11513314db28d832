package config

const (
	defaultConfigPath            = "~/.config/emlwatch/config.toml"
	defaultTargetDir             = "qwerty"
	defaultInputExtension        = ".json"
	defaultOutputExtension       = ".docx"
	defaultBackend               = BackendAuto
	defaultSettleMillis          = 500
	defaultWorkers               = 10
	defaultScanInterval          = 300
	defaultTemplatePath          = "~/.config/emlwatch/template.docx"
	defaultRecordKey             = "asdf"
	defaultCompanionTimeout      = 60
	defaultCompanionPollInterval = 2
	defaultTempExtension         = ".tmp"
	defaultLogDir                = "~/.local/share/emlwatch/logs"
	defaultStateDir              = "~/.local/state/emlwatch"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Notification backends accepted by watch.backend.
const (
	BackendAuto     = "auto"
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Watch: Watch{
			TargetDir:       defaultTargetDir,
			InputExtension:  defaultInputExtension,
			OutputExtension: defaultOutputExtension,
			Backend:         defaultBackend,
			SettleMillis:    defaultSettleMillis,
		},
		Dispatch: Dispatch{
			Workers:      defaultWorkers,
			ScanInterval: defaultScanInterval,
		},
		Processor: Processor{
			TemplatePath:          defaultTemplatePath,
			RecordKey:             defaultRecordKey,
			CompanionTimeout:      defaultCompanionTimeout,
			CompanionPollInterval: defaultCompanionPollInterval,
			TempExtension:         defaultTempExtension,
		},
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
