package schedule

import (
	"context"
	"time"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/trigger"
)

// AddJob validates spec, computes the first run time and stores the job.
// Malformed triggers and unknown handlers fail with errors.ErrConfiguration.
func (s *Scheduler) AddJob(ctx context.Context, spec JobSpec) (*Job, error) {
	job, err := s.buildJob(spec)
	if err != nil {
		return nil, err
	}

	if !spec.Paused {
		job.NextRunTime = job.Trigger.NextFireTime(nil, s.now())
		if job.NextRunTime == nil {
			return nil, errors.NewConfigurationError("trigger %s of job %s will never fire", job.Trigger, job.ID)
		}
	}

	if err := s.store.AddJob(ctx, job); err != nil {
		return nil, err
	}

	s.pulseLog.Infow("Job added",
		logger.FieldJobID, job.ID,
		logger.FieldHandler, job.Handler,
		logger.FieldTrigger, job.Trigger.String(),
		logger.FieldNextRunTime, job.NextRunTime)
	s.Wakeup()
	return job, nil
}

// ModifyJob replaces the definition of job id with spec.
// The next run time is kept when the trigger is unchanged and recomputed otherwise;
// a paused job stays paused.
func (s *Scheduler) ModifyJob(ctx context.Context, id string, spec JobSpec) (*Job, error) {
	existing, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	spec.ID = id
	job, err := s.buildJob(spec)
	if err != nil {
		return nil, err
	}

	switch {
	case spec.Paused || existing.Paused():
		job.NextRunTime = nil
		if trigger.Equal(existing.Trigger.Spec(), job.Trigger.Spec()) {
			job.LastRunTime = existing.LastRunTime
		}
	case trigger.Equal(existing.Trigger.Spec(), job.Trigger.Spec()):
		job.NextRunTime = existing.NextRunTime
		job.LastRunTime = existing.LastRunTime
	default:
		job.NextRunTime = job.Trigger.NextFireTime(nil, s.now())
	}

	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	s.pulseLog.Infow("Job modified",
		logger.FieldJobID, job.ID,
		logger.FieldTrigger, job.Trigger.String(),
		logger.FieldNextRunTime, job.NextRunTime)
	s.Wakeup()
	return job, nil
}

// PauseJob clears the next run time of job id so it never fires until resumed.
func (s *Scheduler) PauseJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.NextRunTime = nil
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	s.pulseLog.Infow("Job paused", logger.FieldJobID, id)
	s.Wakeup()
	return job, nil
}

// ResumeJob gives job id its next run time at or after now.
// A job whose trigger is exhausted cannot be resumed.
func (s *Scheduler) ResumeJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := job.Trigger.NextFireTime(job.LastRunTime, now)
	if next != nil && next.Before(now) {
		// Skip the runs that passed while paused
		next = job.Trigger.NextFireTime(nil, now)
	}
	if next == nil {
		return nil, errors.WithHint(
			errors.NewConfigurationError("job %s has no remaining run times", id),
			"modify the job's trigger or remove it")
	}

	job.NextRunTime = next
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	s.pulseLog.Infow("Job resumed",
		logger.FieldJobID, id,
		logger.FieldNextRunTime, next)
	s.Wakeup()
	return job, nil
}

// RunJobNow dispatches one run of job id immediately without changing its schedule.
// The run is subject to the job's instance limit like any other.
func (s *Scheduler) RunJobNow(ctx context.Context, id string) (time.Time, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	runTime := s.now().UTC().Truncate(time.Microsecond)
	s.dispatch(ctx, job, runTime)
	return runTime, nil
}

// RemoveJob deletes job id and its execution history. A run already in
// progress is not interrupted; its completion is dropped.
func (s *Scheduler) RemoveJob(ctx context.Context, id string) error {
	if err := s.store.RemoveJob(ctx, id); err != nil {
		return err
	}
	s.pulseLog.Infow("Job removed", logger.FieldJobID, id)
	s.Wakeup()
	return nil
}

// RemoveAllJobs deletes every job and every execution record.
func (s *Scheduler) RemoveAllJobs(ctx context.Context) error {
	if err := s.store.RemoveAllJobs(ctx); err != nil {
		return err
	}
	s.pulseLog.Warnw("All jobs removed")
	s.Wakeup()
	return nil
}

// GetJob returns job id, failing with errors.ErrNotFound when it does not exist.
func (s *Scheduler) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.LookupJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.NewNotFoundError("job %s not found", id)
	}
	return job, nil
}

// GetJobs returns every job, paused jobs last.
func (s *Scheduler) GetJobs(ctx context.Context) ([]*Job, error) {
	return s.store.GetAllJobs(ctx)
}

func (s *Scheduler) buildJob(spec JobSpec) (*Job, error) {
	job, err := spec.build(s.Config())
	if err != nil {
		return nil, err
	}
	if !s.handlers.Has(job.Handler) {
		return nil, errors.WithHintf(
			errors.NewConfigurationError("no handler registered for %q", job.Handler),
			"registered handlers: %v", s.handlers.Names())
	}
	return job, nil
}
