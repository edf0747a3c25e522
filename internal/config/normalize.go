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
	c.normalizePicker()
	c.normalizeImport()
	c.normalizeWatchdog()
	c.normalizeThumbnails()
	c.normalizeDrop()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.DropDir, err = expandPath(c.Paths.DropDir); err != nil {
		return fmt.Errorf("paths.drop_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePicker() {
	c.Picker.BaseURL = strings.TrimRight(strings.TrimSpace(c.Picker.BaseURL), "/")
	c.Picker.Token = strings.TrimSpace(c.Picker.Token)
	if c.Picker.Token == "" {
		if value, ok := os.LookupEnv("CAROUSEL_PICKER_TOKEN"); ok {
			c.Picker.Token = strings.TrimSpace(value)
		}
	}
	if c.Picker.RequestTimeout <= 0 {
		c.Picker.RequestTimeout = defaultPickerRequestTimeout
	}
	if c.Picker.PageSize <= 0 {
		c.Picker.PageSize = defaultPickerPageSize
	}
}

func (c *Config) normalizeImport() {
	if c.Import.Workers <= 0 {
		c.Import.Workers = defaultImportWorkers
	}
	if c.Import.MaxAttempts <= 0 {
		c.Import.MaxAttempts = defaultImportMaxAttempts
	}
	if c.Import.FastRetryThreshold < 0 {
		c.Import.FastRetryThreshold = 0
	}
	if c.Import.BackoffBase <= 0 {
		c.Import.BackoffBase = defaultImportBackoffBase
	}
	if c.Import.MaxProcessingWindow <= 0 {
		c.Import.MaxProcessingWindow = defaultImportMaxProcessingWindow
	}
}

func (c *Config) normalizeWatchdog() {
	if c.Watchdog.Interval <= 0 {
		c.Watchdog.Interval = defaultWatchdogInterval
	}
	if c.Watchdog.StuckEnqueuedAfter <= 0 {
		c.Watchdog.StuckEnqueuedAfter = defaultWatchdogStuckEnqueuedAfter
	}
	if c.Watchdog.ValidateEvery <= 0 {
		c.Watchdog.ValidateEvery = defaultWatchdogValidateEvery
	}
}

func (c *Config) normalizeThumbnails() {
	if c.Thumbnails.MaxAttempts <= 0 {
		c.Thumbnails.MaxAttempts = defaultThumbMaxAttempts
	}
	if c.Thumbnails.RetryCountdown <= 0 {
		c.Thumbnails.RetryCountdown = defaultThumbRetryCountdown
	}
	if c.Thumbnails.MonitorInterval <= 0 {
		c.Thumbnails.MonitorInterval = defaultThumbMonitorInterval
	}
	if c.Thumbnails.Width <= 0 {
		c.Thumbnails.Width = defaultThumbWidth
	}
}

func (c *Config) normalizeDrop() {
	if c.Drop.ScanInterval <= 0 {
		c.Drop.ScanInterval = defaultDropScanInterval
	}
	if c.Drop.SettleSeconds < 0 {
		c.Drop.SettleSeconds = defaultDropSettleSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("CAROUSEL_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
