package schedule

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
)

// jobLookup is the part of the job store the recorder needs.
type jobLookup interface {
	JobExists(ctx context.Context, id string) (bool, error)
}

// Recorder writes execution records for scheduler events.
// It never mutates jobs and never returns errors to the scheduler: failures
// are logged and the event is dropped.
type Recorder struct {
	jobs       jobLookup
	executions *ExecutionStore
	logger     *zap.SugaredLogger
}

// NewRecorder creates a recorder writing to executions.
func NewRecorder(jobs jobLookup, executions *ExecutionStore, log *zap.SugaredLogger) *Recorder {
	return &Recorder{
		jobs:       jobs,
		executions: executions,
		logger:     logger.AddPulseSymbol(log).Named("pulse.events"),
	}
}

// Handle implements Listener.
func (r *Recorder) Handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case Submitted:
		r.onSubmitted(ctx, e)
	case Completed:
		r.onCompleted(ctx, e)
	default:
		r.logger.Errorw("Dropping event",
			logger.FieldError, errors.AssertionFailedf("unhandled event type %T", ev))
	}
}

func (r *Recorder) onSubmitted(ctx context.Context, e Submitted) {
	if !r.jobKnown(ctx, e) {
		return
	}
	if _, err := r.executions.GetOrCreate(ctx, e.JobID, e.RunTime, StatusSent, nil); err != nil {
		r.logger.Errorw("Failed to record submission",
			logger.FieldJobID, e.JobID,
			logger.FieldRunTime, e.RunTime,
			logger.FieldError, err)
	}
}

func (r *Recorder) onCompleted(ctx context.Context, e Completed) {
	status := e.Outcome.Status()
	if status == "" {
		r.logger.Errorw("Dropping event",
			logger.FieldJobID, e.JobID,
			logger.FieldError, errors.AssertionFailedf("unknown outcome %q", e.Outcome))
		return
	}
	if !r.jobKnown(ctx, e) {
		return
	}

	outcome := ExecutionOutcome{
		JobID:    e.JobID,
		RunTime:  e.RunTime,
		Status:   status,
		Started:  e.Started,
		Finished: e.Finished,
	}
	if status == StatusError {
		outcome.Exception = nonEmpty(e.Exception)
		outcome.Traceback = nonEmpty(e.Traceback)
	}

	if _, err := r.executions.RecordOutcome(ctx, outcome); err != nil {
		r.logger.Errorw("Failed to record outcome",
			logger.FieldJobID, e.JobID,
			logger.FieldRunTime, e.RunTime,
			logger.FieldStatus, status,
			logger.FieldError, err)
	}
}

// jobKnown reports whether the event's job still exists. Events for removed
// jobs are dropped with a warning.
func (r *Recorder) jobKnown(ctx context.Context, ev Event) bool {
	exists, err := r.jobs.JobExists(ctx, ev.EventJobID())
	if err != nil {
		r.logger.Errorw("Failed to look up job for event",
			logger.FieldJobID, ev.EventJobID(),
			logger.FieldError, err)
		return false
	}
	if !exists {
		r.logger.Warnw("Job not found, dropping event",
			logger.FieldJobID, ev.EventJobID(),
			logger.FieldRunTime, ev.EventRunTime())
		return false
	}
	return true
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
