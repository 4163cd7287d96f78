// Package schedule persists scheduled jobs and drives them from a single wake loop.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/pulse/trigger"
)

// Job is a persisted schedulable unit.
// NextRunTime is nil while the job is paused or after its trigger is exhausted.
type Job struct {
	ID      string
	Name    string
	Handler string // Registered handler name (e.g., "reports.daily")
	Trigger trigger.Trigger
	Args    json.RawMessage // Bound arguments passed to the handler

	MaxInstances     int            // Concurrent runs allowed for this job
	MisfireGraceTime *time.Duration // nil means a late run is never skipped
	Coalesce         bool           // Collapse a backlog of missed run times into one run

	NextRunTime *time.Time
	LastRunTime *time.Time // Most recent scheduled run time handed to the trigger
}

// Paused reports whether the job has no upcoming run.
func (j *Job) Paused() bool {
	return j.NextRunTime == nil
}

// JobSpec is the registration input for a job.
// Zero-valued options fall back to the scheduler's defaults.
type JobSpec struct {
	ID      string          `json:"id,omitempty" yaml:"id,omitempty" toml:"id"`
	Name    string          `json:"name,omitempty" yaml:"name,omitempty" toml:"name"`
	Handler string          `json:"handler" yaml:"handler" toml:"handler"`
	Trigger trigger.Spec    `json:"trigger" yaml:"trigger" toml:"trigger"`
	Args    json.RawMessage `json:"args,omitempty" yaml:"-" toml:"-"`

	MaxInstances int `json:"max_instances,omitempty" yaml:"max_instances,omitempty" toml:"max_instances"`
	// MisfireGraceTime overrides the scheduler's grace period.
	// A non-positive value disables misfire detection for the job.
	MisfireGraceTime *time.Duration `json:"misfire_grace_time,omitempty" yaml:"misfire_grace_time,omitempty" toml:"-"`
	Coalesce         *bool          `json:"coalesce,omitempty" yaml:"coalesce,omitempty" toml:"coalesce"`

	// Paused registers the job without an upcoming run.
	Paused bool `json:"paused,omitempty" yaml:"paused,omitempty" toml:"paused"`
}

// build validates s and resolves defaults into a Job.
// The job id defaults to the handler name.
func (s JobSpec) build(cfg Config) (*Job, error) {
	if s.Handler == "" {
		return nil, errors.NewConfigurationError("job handler is required")
	}
	tr, err := trigger.Parse(s.Trigger)
	if err != nil {
		return nil, err
	}
	if s.MaxInstances < 0 {
		return nil, errors.NewConfigurationError("max_instances must be at least 1, got %d", s.MaxInstances)
	}
	if len(s.Args) > 0 && !json.Valid(s.Args) {
		return nil, errors.NewConfigurationError("args for job %q are not valid JSON", s.ID)
	}

	job := &Job{
		ID:           s.ID,
		Name:         s.Name,
		Handler:      s.Handler,
		Trigger:      tr,
		Args:         s.Args,
		MaxInstances: s.MaxInstances,
		Coalesce:     cfg.Coalesce,
	}
	if job.ID == "" {
		job.ID = s.Handler
	}
	if job.Name == "" {
		job.Name = job.ID
	}
	if job.MaxInstances == 0 {
		job.MaxInstances = cfg.MaxInstances
	}
	if s.Coalesce != nil {
		job.Coalesce = *s.Coalesce
	}

	grace := cfg.MisfireGraceTime
	if s.MisfireGraceTime != nil {
		grace = *s.MisfireGraceTime
	}
	if grace > 0 {
		job.MisfireGraceTime = &grace
	}

	return job, nil
}
