package schedule

import (
	"strings"
	"time"

	"github.com/teranos/cadence/errors"
)

// Status is the lifecycle state recorded for one run of a job.
type Status string

// Execution statuses. The set is closed; the database enforces it too.
const (
	StatusAdded               Status = "Added"
	StatusSent                Status = "Sent"
	StatusMaxInstancesReached Status = "MaxInstancesReached"
	StatusMissed              Status = "Missed"
	StatusModified            Status = "Modified"
	StatusRemoved             Status = "Removed"
	StatusError               Status = "Error"
	StatusExecuted            Status = "Executed"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{
	StatusAdded,
	StatusSent,
	StatusMaxInstancesReached,
	StatusMissed,
	StatusModified,
	StatusRemoved,
	StatusError,
	StatusExecuted,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further update is expected for the run.
func (s Status) Terminal() bool {
	switch s {
	case StatusExecuted, StatusError, StatusMissed, StatusMaxInstancesReached:
		return true
	}
	return false
}

// ParseStatus validates a status name, accepting any letter case.
func ParseStatus(name string) (Status, error) {
	for _, known := range Statuses {
		if strings.EqualFold(string(known), name) {
			return known, nil
		}
	}
	return "", errors.WithHintf(
		errors.NewConfigurationError("unknown execution status %q", name),
		"valid statuses: %v", Statuses)
}

// Execution is one logged attempt, or missed or skipped attempt, to run a job.
// There is at most one per (JobID, RunTime).
type Execution struct {
	ID      string    `json:"id" yaml:"id"`
	JobID   string    `json:"job_id" yaml:"job_id"`
	Status  Status    `json:"status" yaml:"status"`
	RunTime time.Time `json:"run_time" yaml:"run_time"` // Scheduled time of the run

	// Timing in seconds; Started and Finished are Unix epoch seconds.
	Duration *float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Started  *float64 `json:"started,omitempty" yaml:"started,omitempty"`
	Finished *float64 `json:"finished,omitempty" yaml:"finished,omitempty"`

	// Populated only for StatusError
	Exception *string `json:"exception,omitempty" yaml:"exception,omitempty"`
	Traceback *string `json:"traceback,omitempty" yaml:"traceback,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ExecutionOutcome is the terminal information written when a run completes.
type ExecutionOutcome struct {
	JobID     string
	RunTime   time.Time
	Status    Status
	Started   *time.Time
	Finished  *time.Time
	Exception *string
	Traceback *string
}

// ExecutionFilter selects a page of executions.
type ExecutionFilter struct {
	JobID  string // Empty means all jobs
	Status Status // Empty means any status
	Limit  int    // Non-positive means DefaultExecutionLimit
	Offset int
}

// DefaultExecutionLimit is the page size used when ExecutionFilter.Limit is unset.
const DefaultExecutionLimit = 100
