package config

const (
	defaultStateDir   = "~/.local/share/carousel/state"
	defaultStagingDir = "~/.local/share/carousel/staging"
	defaultLibraryDir = "~/library"
	defaultDropDir    = "~/carousel-drop"
	defaultLogDir     = "~/.local/share/carousel/logs"

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60

	defaultPickerRequestTimeout = 30
	defaultPickerPageSize       = 100

	defaultImportWorkers             = 2
	defaultImportPollInterval        = 5
	defaultImportErrorRetryInterval  = 10
	defaultImportHeartbeatInterval   = 15
	defaultImportLeaseWindow         = 120
	defaultImportMaxProcessingWindow = 7200
	defaultImportMaxAttempts         = 4
	defaultImportFastRetryThreshold  = 1
	defaultImportBackoffBase         = 60

	defaultWatchdogInterval           = 60
	defaultWatchdogStuckEnqueuedAfter = 300
	defaultWatchdogValidateEvery      = 5

	defaultThumbMaxAttempts     = 3
	defaultThumbRetryCountdown  = 300
	defaultThumbMonitorInterval = 600
	defaultThumbWidth           = 320

	defaultDropScanInterval  = 10
	defaultDropSettleSeconds = 30

	defaultNotifyRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			DropDir:    defaultDropDir,
			LogDir:     defaultLogDir,
		},
		Picker: Picker{
			RequestTimeout: defaultPickerRequestTimeout,
			PageSize:       defaultPickerPageSize,
		},
		Import: Import{
			Workers:             defaultImportWorkers,
			PollInterval:        defaultImportPollInterval,
			ErrorRetryInterval:  defaultImportErrorRetryInterval,
			HeartbeatInterval:   defaultImportHeartbeatInterval,
			LeaseWindow:         defaultImportLeaseWindow,
			MaxProcessingWindow: defaultImportMaxProcessingWindow,
			MaxAttempts:         defaultImportMaxAttempts,
			FastRetryThreshold:  defaultImportFastRetryThreshold,
			BackoffBase:         defaultImportBackoffBase,
		},
		Watchdog: Watchdog{
			Interval:           defaultWatchdogInterval,
			StuckEnqueuedAfter: defaultWatchdogStuckEnqueuedAfter,
			ValidateEvery:      defaultWatchdogValidateEvery,
		},
		Thumbnails: Thumbnails{
			Enabled:         true,
			MaxAttempts:     defaultThumbMaxAttempts,
			RetryCountdown:  defaultThumbRetryCountdown,
			MonitorInterval: defaultThumbMonitorInterval,
			Width:           defaultThumbWidth,
		},
		Drop: Drop{
			Enabled:       true,
			ScanInterval:  defaultDropScanInterval,
			SettleSeconds: defaultDropSettleSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Sessions:       true,
			Errors:         true,
			Retries:        true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
