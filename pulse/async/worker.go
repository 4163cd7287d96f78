package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
	"github.com/teranos/cadence/sym"
)

var (
	// ErrPoolSaturated is returned by Submit when every worker is busy and the queue is full.
	ErrPoolSaturated = errors.New("worker pool saturated")

	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

// Pulse logs general Pulse/worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// Result describes one finished invocation.
type Result struct {
	Invocation *Invocation
	Started    time.Time
	Finished   time.Time
	Err        error  // nil on success; marked errors.ErrExecution otherwise
	Trace      string // Stack or detailed error chain when Err is set
}

// Duration is the wall time the handler ran for.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

type task struct {
	handler JobHandler
	inv     *Invocation
	done    func(Result)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers   int `json:"workers"`    // Number of concurrent workers
	QueueSize int `json:"queue_size"` // Submissions buffered while all workers are busy
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:   4,
		QueueSize: 64,
	}
}

// WorkerPool runs handler invocations on a fixed set of goroutines.
// Submit never blocks: a full queue is reported as ErrPoolSaturated.
type WorkerPool struct {
	config  WorkerPoolConfig
	tasks   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  pulseLogger
	now     func() time.Time
	mu      sync.RWMutex
	started bool
	stopped bool

	activeMu      sync.Mutex
	activeWorkers int
	processed     int64
	failed        int64
}

// NewWorkerPool creates a worker pool. Handlers observe ctx cancellation, and
// Stop(false) cancels it as well.
func NewWorkerPool(ctx context.Context, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	workerCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		config: cfg,
		tasks:  make(chan task, cfg.QueueSize),
		ctx:    workerCtx,
		cancel: cancel,
		logger: pulseLogger{logger.AddPulseSymbol(log).Named("pulse.worker")},
		now:    time.Now,
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started || wp.stopped {
		return
	}
	wp.started = true

	wp.logger.Starting("Starting worker pool",
		"workers", wp.config.Workers,
		"queue_size", wp.config.QueueSize)

	for i := 0; i < wp.config.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit queues inv for execution by handler. done is called exactly once,
// from a worker goroutine, when the invocation finishes.
func (wp *WorkerPool) Submit(handler JobHandler, inv *Invocation, done func(Result)) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.tasks <- task{handler: handler, inv: inv, done: done}:
		return nil
	default:
		return errors.WithDetailf(ErrPoolSaturated, "%d workers, queue of %d", wp.config.Workers, wp.config.QueueSize)
	}
}

// Stop stops accepting work. With wait, queued and running invocations finish
// before Stop returns. Without wait, the worker context is cancelled, queued
// invocations complete with ErrPoolStopped and Stop returns immediately.
func (wp *WorkerPool) Stop(wait bool) {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.tasks)
	started := wp.started
	wp.mu.Unlock()

	if !wait {
		wp.cancel()
	}
	if !started {
		// Nobody will drain the queue
		wp.drain()
		wp.cancel()
		return
	}
	if !wait {
		wp.logger.Closing("Worker pool stopping without waiting for running jobs")
		return
	}

	wp.wg.Wait()
	wp.cancel()
	wp.logger.Pulse(sym.PulseClose + " Worker pool stopped - all workers exited cleanly")
}

func (wp *WorkerPool) drain() {
	for t := range wp.tasks {
		wp.finish(t, wp.now(), wp.now(), ErrPoolStopped, "")
	}
}

// worker processes submitted invocations until the queue is closed
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for t := range wp.tasks {
		if wp.ctx.Err() != nil {
			now := wp.now()
			wp.finish(t, now, now, ErrPoolStopped, "")
			continue
		}
		wp.run(id, t)
	}
}

func (wp *WorkerPool) run(id int, t task) {
	wp.activeMu.Lock()
	wp.activeWorkers++
	wp.activeMu.Unlock()

	started := wp.now()
	trace, err := wp.execute(t)
	finished := wp.now()

	wp.activeMu.Lock()
	wp.activeWorkers--
	wp.processed++
	if err != nil {
		wp.failed++
	}
	wp.activeMu.Unlock()

	if err != nil {
		wp.logger.Warnw("Job failed",
			"worker_id", id,
			logger.FieldJobID, t.inv.JobID,
			logger.FieldHandler, t.inv.Handler,
			logger.FieldDurationMS, finished.Sub(started).Milliseconds(),
			logger.FieldError, err)
	} else {
		wp.logger.Debugw("Job executed",
			"worker_id", id,
			logger.FieldJobID, t.inv.JobID,
			logger.FieldDurationMS, finished.Sub(started).Milliseconds())
	}

	wp.finish(t, started, finished, err, trace)
}

// execute calls the handler, converting panics into execution errors.
func (wp *WorkerPool) execute(t task) (trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			trace = string(debug.Stack())
			err = errors.NewExecutionError(fmt.Errorf("panic: %v", r))
		}
	}()

	if execErr := t.handler.Execute(wp.ctx, t.inv); execErr != nil {
		return fmt.Sprintf("%+v", execErr), errors.NewExecutionError(execErr)
	}
	return "", nil
}

func (wp *WorkerPool) finish(t task, started, finished time.Time, err error, trace string) {
	if t.done == nil {
		return
	}
	t.done(Result{
		Invocation: t.inv,
		Started:    started,
		Finished:   finished,
		Err:        err,
		Trace:      trace,
	})
}

// Workers returns the configured worker count.
func (wp *WorkerPool) Workers() int {
	return wp.config.Workers
}

// Active returns the number of workers currently executing a handler.
func (wp *WorkerPool) Active() int {
	wp.activeMu.Lock()
	defer wp.activeMu.Unlock()
	return wp.activeWorkers
}
