package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// DefaultDatabasePath is used when database.path is unset
const DefaultDatabasePath = "cadence.db"

// DefaultDirPermissions for ~/.cadence
const DefaultDirPermissions = 0750

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	// Pulse (scheduler) defaults
	v.SetDefault("pulse.workers", 4)
	v.SetDefault("pulse.queue_size", 64)
	v.SetDefault("pulse.misfire_grace_seconds", 1)
	v.SetDefault("pulse.max_instances", 1)
	v.SetDefault("pulse.coalesce", true)
	v.SetDefault("pulse.max_idle_wait_seconds", 60)
	v.SetDefault("pulse.retry_interval_seconds", 5)
	v.SetDefault("pulse.execution_retention_days", 0)

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Postgres URLs carry credentials; keep them out of checked-in am.toml files
	v.BindEnv("database.path", "CADENCE_DATABASE_PATH", "DATABASE_URL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Pulse: {Workers: %d, QueueSize: %d}, Log: {Level: %s}}",
		c.Database.Path, c.Pulse.Workers, c.Pulse.QueueSize, c.Log.Level)
}

func viperWithDefaults() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}
