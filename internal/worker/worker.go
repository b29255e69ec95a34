package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/models"
)

// ErrorHandler receives every execution failure after it has been persisted
// for retry. It is best effort: errors and panics inside the handler are
// swallowed so they can never prevent lock release.
type ErrorHandler func(err error, j *models.Job)

type Worker struct {
	ID       int
	store    Store
	registry *job.Registry
	onError  ErrorHandler
	nudge    chan struct{}
	quit     chan struct{}
	now      func() time.Time

	pollInterval time.Duration
	maxPoll      time.Duration
}

type WorkerOption func(*Worker)

// WithErrorHandler installs a hook invoked after each persisted failure.
func WithErrorHandler(h ErrorHandler) WorkerOption {
	return func(w *Worker) { w.onError = h }
}

// WithPollInterval sets the base poll interval used when no work is found.
// The interval doubles on consecutive empty polls up to max.
func WithPollInterval(base, max time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval, w.maxPoll = base, max }
}

func NewWorker(id int, store Store, registry *job.Registry, opts ...WorkerOption) *Worker {
	w := &Worker{
		ID:           id,
		store:        store,
		registry:     registry,
		nudge:        make(chan struct{}, 1),
		quit:         make(chan struct{}),
		now:          time.Now,
		pollInterval: 1 * time.Second,
		maxPoll:      60 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start polls for work until ctx is cancelled or Stop is called. After an
// empty poll the delay doubles up to the max; finding work resets it. A
// nudge wakes the worker immediately.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		delay := w.pollInterval

		for {
			if w.WorkOne(ctx) {
				delay = w.pollInterval
				continue
			}
			delay = min(delay*2, w.maxPoll)

			select {
			case <-time.After(delay):
			case <-w.nudge:
				delay = w.pollInterval
			case <-w.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Nudge wakes the worker out of its poll sleep, typically in response to a
// NOTIFY from a fresh enqueue. Non-blocking; reports whether the signal was
// accepted.
func (w *Worker) Nudge() bool {
	select {
	case w.nudge <- struct{}{}:
		return true
	default:
		return false
	}
}

func (w *Worker) Stop() { close(w.quit) }

// WorkOne performs a single work attempt: checkout a connection, claim the
// next eligible job under its advisory lock, re-validate the row, execute,
// and release the lock on every exit path. It returns true whenever a claim
// attempt occurred (whether or not execution succeeded) and false only when
// no eligible job existed; callers use this to decide whether to poll again
// immediately or sleep.
func (w *Worker) WorkOne(ctx context.Context) bool {
	var worked bool

	err := w.store.Checkout(ctx, func(conn Conn) error {
		j, err := conn.LockJob(ctx)
		if err != nil {
			return fmt.Errorf("lock job: %w", err)
		}
		if j == nil {
			return nil
		}
		worked = true

		key := j.Key()
		defer func() {
			if err := conn.Unlock(ctx, key.ID); err != nil {
				slog.Error("unlock job", "worker", w.ID, "job_id", key.ID, "error", err)
			}
		}()

		// The claim query may have seen a snapshot from before a concurrent
		// worker deleted this row. If it is gone the attempt is a no-op, not
		// an error.
		exists, err := conn.StillExists(ctx, key)
		if err != nil {
			return fmt.Errorf("validate claim: %w", err)
		}
		if !exists {
			return nil
		}

		if runErr := w.runJob(ctx, conn, j); runErr != nil {
			w.recordFailure(ctx, conn, j, runErr)
		}
		return nil
	})
	if err != nil {
		slog.Error("work attempt", "worker", w.ID, "error", err)
	}
	return worked
}

// runJob dispatches to the registered runner and deletes the row on success.
// Panics in the job body are recovered and reported as ordinary failures,
// with the stack captured for last_error.
func (w *Worker) runJob(ctx context.Context, conn Conn, j *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v\n%s", r, debug.Stack())
		}
	}()

	reg, err := w.registry.Lookup(j.Type)
	if err != nil {
		return err
	}

	args, err := job.DecodeArgs(j.Args)
	if err != nil {
		return err
	}

	key := j.Key()
	exec := job.NewExecution(j, args, func(ctx context.Context) error {
		return conn.Destroy(ctx, key)
	})

	if err := reg.New().Run(ctx, exec); err != nil {
		return err
	}
	if exec.Destroyed() {
		return nil
	}
	return exec.Destroy(ctx)
}

// recordFailure persists the retry (incremented count, backed-off run_at,
// error message) against the claim-time key, then forwards the failure to
// the error hook. Neither a persistence error nor a hook failure may escape:
// the lock release in WorkOne has to run regardless.
func (w *Worker) recordFailure(ctx context.Context, conn Conn, j *models.Job, runErr error) {
	count := j.ErrorCount + 1
	runAt := w.now().Add(retryDelay(count))

	if err := conn.RecordFailure(ctx, j.Key(), count, runAt, runErr.Error()); err != nil {
		slog.Error("record failure", "worker", w.ID, "job_id", j.ID, "error", err)
	}
	slog.Warn("job failed", "worker", w.ID, "job_id", j.ID, "type", j.Type,
		"error_count", count, "retry_at", runAt, "error", runErr)

	w.reportError(runErr, j)
}

func (w *Worker) reportError(runErr error, j *models.Job) {
	if w.onError == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("error handler panicked", "worker", w.ID, "job_id", j.ID, "panic", r)
		}
	}()
	w.onError(runErr, j)
}
