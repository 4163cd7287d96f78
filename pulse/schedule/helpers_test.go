package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cadencetest "github.com/teranos/cadence/internal/testing"
	"github.com/teranos/cadence/pulse/async"
	"github.com/teranos/cadence/pulse/trigger"
)

// t0 is a whole-second instant so interval triggers anchored to the epoch
// fire exactly at it.
var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	conn := cadencetest.CreateTestDB(t)
	return NewStore(conn, zap.NewNop().Sugar()), conn
}

func intervalSpec(seconds float64) trigger.Spec {
	v, _ := json.Marshal(map[string]interface{}{"period": seconds, "unit": "seconds"})
	return trigger.Spec{Type: trigger.TypeInterval, Value: v}
}

func dateSpec(t time.Time) trigger.Spec {
	v, _ := json.Marshal(t.UTC().Format(time.RFC3339Nano))
	return trigger.Spec{Type: trigger.TypeDate, Value: v}
}

func cronSpec(fields map[string]string) trigger.Spec {
	v, _ := json.Marshal(fields)
	return trigger.Spec{Type: trigger.TypeCron, Value: v}
}

// newJob builds a job directly, bypassing the scheduler.
func newJob(t *testing.T, id string, spec trigger.Spec, next *time.Time) *Job {
	t.Helper()
	tr, err := trigger.Parse(spec)
	require.NoError(t, err)
	return &Job{
		ID:           id,
		Name:         id,
		Handler:      "test.noop",
		Trigger:      tr,
		MaxInstances: 1,
		Coalesce:     true,
		NextRunTime:  next,
	}
}

// harness wires a scheduler to an in-memory store with a fake clock.
// Every event is forwarded to events after the recorder has handled it.
type harness struct {
	clock      *fakeClock
	store      *Store
	executions *ExecutionStore
	handlers   *async.HandlerRegistry
	pool       *async.WorkerPool
	sched      *Scheduler
	events     chan Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	log := zap.NewNop().Sugar()
	clock := newFakeClock(t0)

	store, conn := newTestStore(t)
	store.now = clock.Now
	executions := NewExecutionStore(conn)
	executions.now = clock.Now

	handlers := async.NewHandlerRegistry()
	handlers.RegisterFunc("test.noop", func(ctx context.Context, inv *async.Invocation) error {
		return nil
	})

	pool := async.NewWorkerPool(context.Background(), async.WorkerPoolConfig{Workers: 4, QueueSize: 16}, log)
	pool.Start()
	t.Cleanup(func() { pool.Stop(true) })

	h := &harness{
		clock:      clock,
		store:      store,
		executions: executions,
		handlers:   handlers,
		pool:       pool,
		events:     make(chan Event, 256),
	}
	forward := ListenerFunc(func(ctx context.Context, ev Event) { h.events <- ev })
	h.sched = New(store, handlers, pool, cfg, log,
		WithClock(clock.Now),
		WithListeners(NewRecorder(store, executions, log), forward))
	return h
}

// cycle runs one wake cycle at the current fake time.
func (h *harness) cycle() time.Duration {
	return h.sched.processDueJobs(context.Background(), h.clock.Now())
}

// awaitCompleted returns the next Completed event, skipping submissions.
func (h *harness) awaitCompleted(t *testing.T) Completed {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if c, ok := ev.(Completed); ok {
				return c
			}
		case <-deadline:
			t.Fatal("timed out waiting for a Completed event")
			return Completed{}
		}
	}
}

func (h *harness) executionsOf(t *testing.T, jobID string) []*Execution {
	t.Helper()
	execs, _, err := h.executions.ListExecutions(context.Background(), ExecutionFilter{JobID: jobID})
	require.NoError(t, err)
	return execs
}
