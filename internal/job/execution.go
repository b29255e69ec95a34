package job

import (
	"context"

	"github.com/FooBarWidget/que/internal/models"
)

// Execution is the handle a Runner receives for one attempt of one job.
// It carries the deserialized arguments and the claimed record, and lets a
// runner finalize its own row early via Destroy (for jobs that manage their
// own completion, e.g. delete-and-reschedule patterns).
type Execution struct {
	Args   []any
	Record *models.Job

	destroy   func(ctx context.Context) error
	destroyed bool
}

// NewExecution builds an Execution whose Destroy calls destroy against the
// claimed row's composite key. The worker provides destroy bound to the
// claim's pinned connection.
func NewExecution(record *models.Job, args []any, destroy func(ctx context.Context) error) *Execution {
	return &Execution{Args: args, Record: record, destroy: destroy}
}

// Destroy deletes the job's row immediately. After a successful Destroy the
// worker will not delete the row again when Run returns nil.
func (e *Execution) Destroy(ctx context.Context) error {
	if e.destroyed {
		return nil
	}
	if err := e.destroy(ctx); err != nil {
		return err
	}
	e.destroyed = true
	return nil
}

// Destroyed reports whether the runner already finalized the row itself.
func (e *Execution) Destroyed() bool { return e.destroyed }
