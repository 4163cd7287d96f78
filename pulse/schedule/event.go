package schedule

import (
	"context"
	"time"
)

// Event is a scheduler lifecycle notification.
// The set of variants is closed: Submitted and Completed.
type Event interface {
	// EventJobID returns the id of the job the event is about.
	EventJobID() string
	// EventRunTime returns the scheduled run time the event is about.
	EventRunTime() time.Time

	sealed()
}

// Submitted is emitted when a run is handed to the worker pool.
type Submitted struct {
	JobID   string
	RunTime time.Time
	At      time.Time // When the submission happened
}

func (e Submitted) EventJobID() string      { return e.JobID }
func (e Submitted) EventRunTime() time.Time { return e.RunTime }
func (Submitted) sealed()                   {}

// Outcome is how a scheduled run ended.
type Outcome string

const (
	OutcomeExecuted            Outcome = "executed"
	OutcomeError               Outcome = "error"
	OutcomeMissed              Outcome = "missed"
	OutcomeMaxInstancesReached Outcome = "max_instances_reached"
)

// Status maps the outcome onto the execution status it is recorded as.
func (o Outcome) Status() Status {
	switch o {
	case OutcomeExecuted:
		return StatusExecuted
	case OutcomeError:
		return StatusError
	case OutcomeMissed:
		return StatusMissed
	case OutcomeMaxInstancesReached:
		return StatusMaxInstancesReached
	}
	return ""
}

// Completed is emitted when a run ends, including runs that never started
// because they were missed or the job was already at its instance limit.
type Completed struct {
	JobID   string
	RunTime time.Time
	Outcome Outcome

	// Set only when the handler actually ran
	Started  *time.Time
	Finished *time.Time

	// Set only for OutcomeError
	Exception string
	Traceback string
}

func (e Completed) EventJobID() string      { return e.JobID }
func (e Completed) EventRunTime() time.Time { return e.RunTime }
func (Completed) sealed()                   {}

// Listener receives scheduler events. Handle must not block for long: it is
// called from the wake loop and from worker goroutines.
type Listener interface {
	Handle(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function into a Listener.
type ListenerFunc func(ctx context.Context, ev Event)

func (f ListenerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }
