package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/sym"
)

// Scheduler owns the wake loop: it reads due jobs from the store, hands their
// runs to the worker pool, emits lifecycle events and writes back each job's
// next run time.
type Scheduler struct {
	store     JobStore
	handlers  *async.HandlerRegistry
	pool      *async.WorkerPool
	listeners []Listener
	logger    *zap.SugaredLogger
	pulseLog  *zap.SugaredLogger // Logger with Pulse symbol pre-attached
	now       func() time.Time

	mu       sync.Mutex
	cfg      Config
	running  map[string]int // In-flight runs per job id
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	eventCtx context.Context
	stats    Stats
	lastNext *time.Time

	wake         chan struct{}
	inflight     sync.WaitGroup
	storeErrLog  rate.Sometimes
	storeErrored bool
}

// Stats is a snapshot of scheduler activity since Start.
type Stats struct {
	Running             bool       `json:"running" yaml:"running"`
	Cycles              int64      `json:"cycles" yaml:"cycles"`
	LastWakeAt          time.Time  `json:"last_wake_at" yaml:"last_wake_at"`
	NextRunTime         *time.Time `json:"next_run_time,omitempty" yaml:"next_run_time,omitempty"`
	InFlight            int        `json:"in_flight" yaml:"in_flight"`
	Submitted           int64      `json:"submitted" yaml:"submitted"`
	Executed            int64      `json:"executed" yaml:"executed"`
	Failed              int64      `json:"failed" yaml:"failed"`
	Missed              int64      `json:"missed" yaml:"missed"`
	MaxInstancesReached int64      `json:"max_instances_reached" yaml:"max_instances_reached"`
	StoreErrors         int64      `json:"store_errors" yaml:"store_errors"`

	Pool async.SystemMetrics `json:"pool" yaml:"pool"`
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now. Tests use it to drive wake cycles deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithListeners attaches listeners that receive every event, in order.
func WithListeners(listeners ...Listener) Option {
	return func(s *Scheduler) { s.listeners = append(s.listeners, listeners...) }
}

// New creates a scheduler. Invalid config values are replaced by defaults.
func New(store JobStore, handlers *async.HandlerRegistry, pool *async.WorkerPool, cfg Config, log *zap.SugaredLogger, opts ...Option) *Scheduler {
	if err := cfg.Validate(); err != nil {
		logger.OrNop(log).Warnw("Invalid scheduler config, using defaults", logger.FieldError, err)
		cfg = DefaultConfig()
	}
	log = logger.OrNop(log).Named("pulse.scheduler")

	s := &Scheduler{
		store:       store,
		handlers:    handlers,
		pool:        pool,
		logger:      log,
		pulseLog:    logger.AddPulseSymbol(log),
		now:         time.Now,
		cfg:         cfg,
		running:     make(map[string]int),
		eventCtx:    context.Background(),
		wake:        make(chan struct{}, 1),
		storeErrLog: rate.Sometimes{First: 3, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool and the wake loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.eventCtx = context.WithoutCancel(ctx)
	s.started = true
	s.stats.Running = true

	s.pool.Start()
	go s.run(loopCtx, s.done)

	s.pulseLog.Infow(sym.PulseOpen+" Scheduler started",
		"workers", s.pool.Workers(),
		"max_idle_wait", s.cfg.MaxIdleWait)
	return nil
}

// Shutdown stops the wake loop and the worker pool. With wait, it returns
// after every in-flight run has finished and been recorded.
func (s *Scheduler) Shutdown(wait bool) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.stats.Running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.pool.Stop(wait)
	if wait {
		s.inflight.Wait()
	}
	s.pulseLog.Infow(sym.PulseClose+" Scheduler stopped", "waited", wait)
}

// Running reports whether the wake loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Wakeup interrupts the current sleep so the next cycle starts immediately.
func (s *Scheduler) Wakeup() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Reconfigure swaps the tunables. Jobs already stored keep their own options.
func (s *Scheduler) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.pulseLog.Infow("Scheduler reconfigured",
		"misfire_grace", cfg.MisfireGraceTime,
		"max_instances", cfg.MaxInstances,
		"coalesce", cfg.Coalesce,
		"max_idle_wait", cfg.MaxIdleWait)
	s.Wakeup()
	return nil
}

// Config returns the current tunables.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Stats returns a snapshot of scheduler activity.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	st := s.stats
	for _, n := range s.running {
		st.InFlight += n
	}
	if s.lastNext != nil {
		t := *s.lastNext
		st.NextRunTime = &t
	}
	s.mu.Unlock()

	st.Pool = s.pool.GetSystemMetrics()
	return st
}

// run is the main wake loop
func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait := s.processDueJobs(ctx, s.now())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// processDueJobs runs one wake cycle at now and returns how long to sleep
// before the next one.
func (s *Scheduler) processDueJobs(ctx context.Context, now time.Time) time.Duration {
	cfg := s.Config()

	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastWakeAt = now
	s.mu.Unlock()

	due, err := s.store.GetDueJobs(ctx, now)
	if err != nil {
		s.logStoreError("Failed to get due jobs", err)
		return cfg.RetryInterval
	}

	storeFailed := false
	for _, job := range due {
		if ctx.Err() != nil {
			return cfg.RetryInterval
		}
		if err := s.processJob(ctx, job, now, cfg); err != nil {
			s.logStoreError("Failed to store next run time", err, logger.FieldJobID, job.ID)
			storeFailed = true
		}
	}

	next, err := s.store.GetNextRunTime(ctx)
	if err != nil {
		s.logStoreError("Failed to get next run time", err)
		return cfg.RetryInterval
	}
	if storeFailed {
		return cfg.RetryInterval
	}
	s.recovered()
	s.logNextRun(next)

	wait := cfg.MaxIdleWait
	if next != nil {
		until := next.Sub(s.now())
		if until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// processJob stores the job's next run time and then dispatches every run
// time of job that is due at now. Nothing is dispatched unless the store has
// moved past those run times, so a retried cycle never runs them again.
func (s *Scheduler) processJob(ctx context.Context, job *Job, now time.Time, cfg Config) error {
	runTimes := dueRunTimes(job, now, cfg.MaxCatchUp)
	if len(runTimes) == 0 {
		return nil
	}

	last := runTimes[len(runTimes)-1]
	job.LastRunTime = &last
	job.NextRunTime = job.Trigger.NextFireTime(&last, now)
	if err := s.store.UpdateJob(ctx, job); err != nil {
		if errors.IsNotFoundError(err) {
			// Removed while this cycle was running
			s.logger.Debugw("Job removed before dispatch", logger.FieldJobID, job.ID)
			return nil
		}
		return err
	}
	if job.NextRunTime == nil {
		s.pulseLog.Infow("Job has no more run times, pausing it",
			logger.FieldJobID, job.ID,
			logger.FieldTrigger, job.Trigger.String())
	}

	var live []time.Time
	for _, rt := range runTimes {
		if job.MisfireGraceTime != nil && now.Sub(rt) > *job.MisfireGraceTime {
			s.pulseLog.Warnw("Run time of job was missed",
				logger.FieldJobID, job.ID,
				logger.FieldRunTime, rt,
				logger.FieldLateBy, now.Sub(rt))
			s.emit(ctx, Completed{JobID: job.ID, RunTime: rt, Outcome: OutcomeMissed})
			continue
		}
		live = append(live, rt)
	}
	if job.Coalesce && len(live) > 1 {
		live = live[len(live)-1:]
	}
	for _, rt := range live {
		s.dispatch(ctx, job, rt)
	}
	return nil
}

// dueRunTimes lists the run times of job at or before now, oldest first,
// starting with its stored next run time.
func dueRunTimes(job *Job, now time.Time, limit int) []time.Time {
	if job.NextRunTime == nil || job.NextRunTime.After(now) {
		return nil
	}
	runTimes := []time.Time{*job.NextRunTime}
	for len(runTimes) < limit {
		last := runTimes[len(runTimes)-1]
		next := job.Trigger.NextFireTime(&last, now)
		if next == nil || next.After(now) || !next.After(last) {
			break
		}
		runTimes = append(runTimes, *next)
	}
	return runTimes
}

// dispatch hands one run of job to the worker pool, respecting its instance limit.
func (s *Scheduler) dispatch(ctx context.Context, job *Job, runTime time.Time) {
	handler := s.handlers.Get(job.Handler)
	if handler == nil {
		s.pulseLog.Errorw("No handler registered for job",
			logger.FieldJobID, job.ID,
			logger.FieldHandler, job.Handler)
		s.emit(ctx, Completed{
			JobID:     job.ID,
			RunTime:   runTime,
			Outcome:   OutcomeError,
			Exception: fmt.Sprintf("no handler registered for %q", job.Handler),
		})
		return
	}

	s.mu.Lock()
	instances := s.running[job.ID]
	if instances >= job.MaxInstances {
		s.mu.Unlock()
		s.pulseLog.Warnw("Job is already at its instance limit, skipping run",
			logger.FieldJobID, job.ID,
			logger.FieldRunTime, runTime,
			logger.FieldInstances, instances)
		s.emit(ctx, Completed{JobID: job.ID, RunTime: runTime, Outcome: OutcomeMaxInstancesReached})
		return
	}
	s.running[job.ID]++
	s.mu.Unlock()
	s.inflight.Add(1)

	s.emit(ctx, Submitted{JobID: job.ID, RunTime: runTime, At: s.now()})

	inv := &async.Invocation{
		JobID:   job.ID,
		Handler: job.Handler,
		RunTime: runTime,
		Args:    job.Args,
	}
	if err := s.pool.Submit(handler, inv, s.complete); err != nil {
		s.release(job.ID)
		s.inflight.Done()
		s.pulseLog.Errorw("Failed to submit job",
			logger.FieldJobID, job.ID,
			logger.FieldRunTime, runTime,
			logger.FieldError, err)
		s.emit(ctx, Completed{
			JobID:     job.ID,
			RunTime:   runTime,
			Outcome:   OutcomeError,
			Exception: err.Error(),
			Traceback: fmt.Sprintf("%+v", err),
		})
		return
	}

	s.logger.Debugw("Job submitted",
		logger.FieldJobID, job.ID,
		logger.FieldHandler, job.Handler,
		logger.FieldRunTime, runTime)
}

// complete is called from a worker goroutine when a run finishes.
func (s *Scheduler) complete(r async.Result) {
	defer s.inflight.Done()
	s.release(r.Invocation.JobID)

	started, finished := r.Started, r.Finished
	ev := Completed{
		JobID:    r.Invocation.JobID,
		RunTime:  r.Invocation.RunTime,
		Outcome:  OutcomeExecuted,
		Started:  &started,
		Finished: &finished,
	}
	if r.Err != nil {
		ev.Outcome = OutcomeError
		ev.Exception = r.Err.Error()
		ev.Traceback = r.Trace
	}

	s.mu.Lock()
	ctx := s.eventCtx
	s.mu.Unlock()
	s.emit(ctx, ev)
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[jobID] <= 1 {
		delete(s.running, jobID)
		return
	}
	s.running[jobID]--
}

// emit counts the event and passes it to every listener in order.
func (s *Scheduler) emit(ctx context.Context, ev Event) {
	s.mu.Lock()
	switch e := ev.(type) {
	case Submitted:
		s.stats.Submitted++
	case Completed:
		switch e.Outcome {
		case OutcomeExecuted:
			s.stats.Executed++
		case OutcomeError:
			s.stats.Failed++
		case OutcomeMissed:
			s.stats.Missed++
		case OutcomeMaxInstancesReached:
			s.stats.MaxInstancesReached++
		}
	}
	s.mu.Unlock()

	for _, l := range s.listeners {
		l.Handle(ctx, ev)
	}
}

// logStoreError logs store failures without flooding the log while the store
// stays unavailable.
func (s *Scheduler) logStoreError(msg string, err error, keysAndValues ...interface{}) {
	s.mu.Lock()
	s.stats.StoreErrors++
	s.storeErrored = true
	s.mu.Unlock()

	kv := append([]interface{}{logger.FieldError, err}, keysAndValues...)
	s.storeErrLog.Do(func() {
		s.pulseLog.Errorw(msg, kv...)
	})
	s.logger.Debugw(msg, kv...)
}

func (s *Scheduler) recovered() {
	s.mu.Lock()
	wasErrored := s.storeErrored
	s.storeErrored = false
	s.mu.Unlock()
	if wasErrored {
		s.pulseLog.Infow("Job store reachable again")
	}
}

// logNextRun logs the next scheduled run time whenever it changes.
func (s *Scheduler) logNextRun(next *time.Time) {
	s.mu.Lock()
	changed := (next == nil) != (s.lastNext == nil) || (next != nil && !next.Equal(*s.lastNext))
	s.lastNext = next
	s.mu.Unlock()
	if !changed {
		return
	}

	if next == nil {
		s.pulseLog.Debugw("Pulse - no scheduled executions")
		return
	}
	metrics := s.pool.GetSystemMetrics()
	s.pulseLog.Debugw(fmt.Sprintf("Pulse - next scheduled execution in %s", next.Sub(s.now()).Round(time.Second)),
		logger.FieldNextRunTime, *next,
		"workers_active", metrics.WorkersActive,
		"workers_total", metrics.WorkersTotal)
}
