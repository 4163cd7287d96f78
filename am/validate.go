package am

import "github.com/teranos/cadence/errors"

// Validate checks that the configuration is valid.
// Every failure is classified as errors.ErrConfiguration.
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to DefaultDatabasePath

	// Workers: 0 means the daemon cannot run anything
	if c.Pulse.Workers < 1 {
		return errors.NewConfigurationError("pulse.workers must be >= 1, got %d", c.Pulse.Workers)
	}
	if c.Pulse.QueueSize < 0 {
		return errors.NewConfigurationError("pulse.queue_size must be >= 0, got %d", c.Pulse.QueueSize)
	}

	// Zero grace is valid: any lateness is a miss
	if c.Pulse.MisfireGraceSeconds < 0 {
		return errors.NewConfigurationError("pulse.misfire_grace_seconds must be >= 0, got %d", c.Pulse.MisfireGraceSeconds)
	}
	if c.Pulse.MaxInstances < 1 {
		return errors.NewConfigurationError("pulse.max_instances must be >= 1, got %d", c.Pulse.MaxInstances)
	}
	if c.Pulse.MaxIdleWaitSeconds < 1 {
		return errors.NewConfigurationError("pulse.max_idle_wait_seconds must be >= 1, got %d", c.Pulse.MaxIdleWaitSeconds)
	}
	if c.Pulse.RetryIntervalSeconds < 1 {
		return errors.NewConfigurationError("pulse.retry_interval_seconds must be >= 1, got %d", c.Pulse.RetryIntervalSeconds)
	}
	if c.Pulse.ExecutionRetentionDays < 0 {
		return errors.NewConfigurationError("pulse.execution_retention_days must be >= 0, got %d", c.Pulse.ExecutionRetentionDays)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.NewConfigurationError("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 {
		return errors.NewConfigurationError("log.max_size_mb and log.max_backups must be >= 0")
	}

	return nil
}
