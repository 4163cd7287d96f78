package schedule

import (
	"time"

	"github.com/teranos/cadence/errors"
)

// Config contains scheduler tunables. Per-job options override the first three.
type Config struct {
	MisfireGraceTime time.Duration // How late a run may start; zero disables the check
	MaxInstances     int           // Concurrent runs allowed per job
	Coalesce         bool          // Collapse a backlog of run times into one run

	MaxIdleWait   time.Duration // Longest sleep between wake cycles
	RetryInterval time.Duration // Sleep after a store error
	MaxCatchUp    int           // Run times computed per job per cycle
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MisfireGraceTime: 1 * time.Second,
		MaxInstances:     1,
		Coalesce:         true,
		MaxIdleWait:      60 * time.Second,
		RetryInterval:    5 * time.Second,
		MaxCatchUp:       1000,
	}
}

// Validate checks that every field is usable.
func (c Config) Validate() error {
	if c.MisfireGraceTime < 0 {
		return errors.NewConfigurationError("misfire grace time must not be negative, got %s", c.MisfireGraceTime)
	}
	if c.MaxInstances < 1 {
		return errors.NewConfigurationError("max instances must be at least 1, got %d", c.MaxInstances)
	}
	if c.MaxIdleWait <= 0 {
		return errors.NewConfigurationError("max idle wait must be positive, got %s", c.MaxIdleWait)
	}
	if c.RetryInterval <= 0 {
		return errors.NewConfigurationError("retry interval must be positive, got %s", c.RetryInterval)
	}
	if c.MaxCatchUp < 1 {
		return errors.NewConfigurationError("max catch-up must be at least 1, got %d", c.MaxCatchUp)
	}
	return nil
}
