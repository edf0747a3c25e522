package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePicker(); err != nil {
		return err
	}
	if err := c.validateImport(); err != nil {
		return err
	}
	if err := c.validateWatchdog(); err != nil {
		return err
	}
	if err := c.validateThumbnails(); err != nil {
		return err
	}
	if err := c.validateDrop(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	return nil
}

func (c *Config) validatePicker() error {
	if strings.TrimSpace(c.Picker.BaseURL) == "" {
		return nil
	}
	if !strings.HasPrefix(c.Picker.BaseURL, "http://") && !strings.HasPrefix(c.Picker.BaseURL, "https://") {
		return errors.New("picker.base_url must start with http:// or https://")
	}
	if strings.TrimSpace(c.Picker.Token) == "" {
		return errors.New("picker.token must be set when picker.base_url is configured (or set CAROUSEL_PICKER_TOKEN)")
	}
	return nil
}

func (c *Config) validateImport() error {
	if err := ensurePositiveMap(map[string]int{
		"import.workers":              c.Import.Workers,
		"import.poll_interval":        c.Import.PollInterval,
		"import.error_retry_interval": c.Import.ErrorRetryInterval,
		"import.max_attempts":         c.Import.MaxAttempts,
		"import.backoff_base":         c.Import.BackoffBase,
	}); err != nil {
		return err
	}
	if c.Import.HeartbeatInterval <= 0 {
		return errors.New("import.heartbeat_interval must be positive")
	}
	if c.Import.LeaseWindow <= 0 {
		return errors.New("import.lease_window must be positive")
	}
	if c.Import.LeaseWindow <= c.Import.HeartbeatInterval {
		return errors.New("import.lease_window must be greater than import.heartbeat_interval")
	}
	if c.Import.MaxProcessingWindow <= c.Import.LeaseWindow {
		return errors.New("import.max_processing_window must be greater than import.lease_window")
	}
	return nil
}

func (c *Config) validateWatchdog() error {
	return ensurePositiveMap(map[string]int{
		"watchdog.interval":             c.Watchdog.Interval,
		"watchdog.stuck_enqueued_after": c.Watchdog.StuckEnqueuedAfter,
		"watchdog.validate_every":       c.Watchdog.ValidateEvery,
	})
}

func (c *Config) validateThumbnails() error {
	if !c.Thumbnails.Enabled {
		return nil
	}
	return ensurePositiveMap(map[string]int{
		"thumbnails.max_attempts":     c.Thumbnails.MaxAttempts,
		"thumbnails.retry_countdown":  c.Thumbnails.RetryCountdown,
		"thumbnails.monitor_interval": c.Thumbnails.MonitorInterval,
		"thumbnails.width":            c.Thumbnails.Width,
	})
}

func (c *Config) validateDrop() error {
	if !c.Drop.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Paths.DropDir) == "" {
		return errors.New("paths.drop_dir must be set when drop.enabled is true")
	}
	return ensurePositiveMap(map[string]int{
		"drop.scan_interval": c.Drop.ScanInterval,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
