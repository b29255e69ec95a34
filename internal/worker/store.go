package worker

import (
	"context"
	"time"

	"github.com/FooBarWidget/que/internal/models"
)

// Store is the storage contract the worker needs for one work attempt.
type Store interface {
	// Checkout pins one pooled connection for the duration of fn. The claim
	// lock is session-scoped, so locking, validation, execution and unlock
	// must all run on this same connection.
	Checkout(ctx context.Context, fn func(Conn) error) error
}

// Conn is the set of operations available on a checked-out connection.
type Conn interface {
	// LockJob atomically selects the next eligible, unlocked job ordered by
	// (priority, run_at, id) and takes a session-scoped exclusive lock on its
	// id. Returns nil when no eligible job exists.
	LockJob(ctx context.Context) (*models.Job, error)

	// StillExists re-checks the claimed row by its composite key. The claim
	// query can observe a snapshot in which the row still exists even though
	// a concurrent worker deleted it before our lock was granted.
	StillExists(ctx context.Context, key models.JobKey) (bool, error)

	// Destroy deletes the row by its composite key.
	Destroy(ctx context.Context, key models.JobKey) error

	// RecordFailure persists a failed attempt: the incremented error count,
	// the backed-off run_at, and the failure message, matched against the
	// key as it was at claim time.
	RecordFailure(ctx context.Context, key models.JobKey, errorCount int, runAt time.Time, message string) error

	// Unlock releases the session-scoped lock for the job id. A leaked lock
	// starves that id until the session dies, so this runs on every exit.
	Unlock(ctx context.Context, id int64) error
}
