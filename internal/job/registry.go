package job

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Runner is the behavior a consumer implements for each job type. Run
// receives the deserialized arguments through exec. Returning a non-nil
// error reschedules the job with backoff; returning nil deletes it, unless
// the runner already finalized the row itself via exec.Destroy.
type Runner interface {
	Run(ctx context.Context, exec *Execution) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, exec *Execution) error

func (f RunnerFunc) Run(ctx context.Context, exec *Execution) error { return f(ctx, exec) }

// Registration binds a job type name to its constructor and its type-level
// scheduling defaults. Priority and RunAt are optional; when nil the
// enqueuer falls back to the global defaults.
type Registration struct {
	New      func() Runner
	Priority *int
	RunAt    func() time.Time
}

// UnknownTypeError reports a claimed job whose type has no registration.
// It flows through the ordinary failure path: the row persists and keeps
// being retried (and reported) until the registration is fixed.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no job registered for type %q", e.Type)
}

// Registry maps job type names to registrations. It is populated at startup
// and safe for concurrent lookup by workers.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Registration
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Registration)}
}

// Register associates name with reg. Registering the same name twice
// replaces the earlier entry.
func (r *Registry) Register(name string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = &reg
}

// RegisterFunc registers a plain function with no type-level defaults.
func (r *Registry) RegisterFunc(name string, fn RunnerFunc) {
	r.Register(name, Registration{New: func() Runner { return fn }})
}

// Lookup resolves name to its registration, or an UnknownTypeError.
func (r *Registry) Lookup(name string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[name]
	if !ok {
		return nil, &UnknownTypeError{Type: name}
	}
	return reg, nil
}

// Noop is a Runner that does nothing. Useful for types that only need
// scheduling semantics, and in tests.
type Noop struct{}

func (Noop) Run(context.Context, *Execution) error { return nil }
