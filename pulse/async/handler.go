package async

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teranos/cadence/errors"
)

// Invocation is one scheduled run of a job handed to a handler.
type Invocation struct {
	JobID   string          `json:"job_id"`
	Handler string          `json:"handler"`
	RunTime time.Time       `json:"run_time"` // Scheduled time, not the time execution started
	Args    json.RawMessage `json:"args,omitempty"`
}

// DecodeArgs unmarshals the job's arguments into dst.
// Empty arguments leave dst untouched.
func (inv *Invocation) DecodeArgs(dst interface{}) error {
	if len(inv.Args) == 0 || string(inv.Args) == "null" {
		return nil
	}
	if err := json.Unmarshal(inv.Args, dst); err != nil {
		return errors.Wrapf(err, "decode args for job %s", inv.JobID)
	}
	return nil
}

// JobHandler runs the callable behind a scheduled job.
// Domain packages implement this interface; the scheduler only knows handlers
// by name, so a job's stored state never carries code.
type JobHandler interface {
	// Execute runs the job and returns any error encountered.
	// Handlers should return promptly once ctx is cancelled.
	Execute(ctx context.Context, inv *Invocation) error

	// Name returns the handler name (e.g., "reports.daily", "builtin.noop").
	// Used for registration and job routing.
	Name() string
}

// HandlerFunc adapts a plain function into a named JobHandler.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, inv *Invocation) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Execute(ctx context.Context, inv *Invocation) error {
	return h.Fn(ctx, inv)
}

// HandlerRegistry manages job handlers by name.
// Thread-safe for concurrent handler registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler // Handler name -> handler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlerName := handler.Name()
	if handlerName == "" {
		panic("handler name must not be empty")
	}
	if _, exists := r.handlers[handlerName]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", handlerName))
	}
	r.handlers[handlerName] = handler
}

// RegisterFunc registers fn under name.
func (r *HandlerRegistry) RegisterFunc(name string, fn func(ctx context.Context, inv *Invocation) error) {
	r.Register(HandlerFunc{HandlerName: name, Fn: fn})
}

// Get retrieves the handler for a handler name.
// Returns nil if no handler is registered.
func (r *HandlerRegistry) Get(handlerName string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[handlerName]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(handlerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[handlerName]
	return exists
}

// Names returns all registered handler names, sorted.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
