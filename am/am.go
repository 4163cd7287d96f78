package am

import "time"

// Config represents the cadence configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Pulse    PulseConfig    `mapstructure:"pulse" toml:"pulse"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the job store.
// Path is either a SQLite file path or a postgres:// URL.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// PulseConfig configures the scheduler and its worker pool
type PulseConfig struct {
	// Worker pool
	Workers   int `mapstructure:"workers" toml:"workers"`       // Concurrent job workers (default: 4)
	QueueSize int `mapstructure:"queue_size" toml:"queue_size"` // Buffered submissions before the pool reports saturation (default: 64)

	// Per-job defaults, applied when a job does not set its own
	MisfireGraceSeconds int  `mapstructure:"misfire_grace_seconds" toml:"misfire_grace_seconds"` // Lateness tolerated before a run is Missed (default: 1)
	MaxInstances        int  `mapstructure:"max_instances" toml:"max_instances"`                 // Concurrent runs per job (default: 1)
	Coalesce            bool `mapstructure:"coalesce" toml:"coalesce"`                           // Collapse catch-up runs into one (default: true)

	// Wake loop
	MaxIdleWaitSeconds   int `mapstructure:"max_idle_wait_seconds" toml:"max_idle_wait_seconds"`   // Upper bound on sleep between wake cycles (default: 60)
	RetryIntervalSeconds int `mapstructure:"retry_interval_seconds" toml:"retry_interval_seconds"` // Wait after a store failure (default: 5)

	// Execution history
	ExecutionRetentionDays int `mapstructure:"execution_retention_days" toml:"execution_retention_days"` // 0 = keep forever
}

// LogConfig configures the global logger
type LogConfig struct {
	JSON       bool   `mapstructure:"json" toml:"json"`
	Level      string `mapstructure:"level" toml:"level"`
	File       string `mapstructure:"file" toml:"file"` // Optional rotating log file
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
}

// MisfireGrace returns the default misfire grace time
func (p PulseConfig) MisfireGrace() time.Duration {
	return time.Duration(p.MisfireGraceSeconds) * time.Second
}

// MaxIdleWait returns the wake loop's maximum sleep
func (p PulseConfig) MaxIdleWait() time.Duration {
	return time.Duration(p.MaxIdleWaitSeconds) * time.Second
}

// RetryInterval returns the wait applied after a store failure
func (p PulseConfig) RetryInterval() time.Duration {
	return time.Duration(p.RetryIntervalSeconds) * time.Second
}

// ExecutionRetention returns how long execution records are kept (0 = forever)
func (p PulseConfig) ExecutionRetention() time.Duration {
	return time.Duration(p.ExecutionRetentionDays) * 24 * time.Hour
}
