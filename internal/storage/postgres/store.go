package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FooBarWidget/que/internal/config"
	"github.com/FooBarWidget/que/internal/models"
	"github.com/FooBarWidget/que/internal/queue"
	"github.com/FooBarWidget/que/internal/worker"
	"gorm.io/gorm"
)

// lockJobSQL walks eligible jobs in (priority, run_at, id) order, attempting
// a session-scoped advisory lock on each id until one is granted, and
// returns that row. Jobs another session has locked fail pg_try_advisory_lock
// and are skipped, so the query returns the next claimable job or no rows.
const lockJobSQL = `
WITH RECURSIVE candidates AS (
  SELECT (j).*, pg_try_advisory_lock((j).id) AS locked
  FROM (
    SELECT j
    FROM que_jobs AS j
    WHERE run_at <= now()
    ORDER BY priority, run_at, id
    LIMIT 1
  ) AS t1
  UNION ALL (
    SELECT (j).*, pg_try_advisory_lock((j).id) AS locked
    FROM (
      SELECT (
        SELECT j
        FROM que_jobs AS j
        WHERE run_at <= now()
          AND (priority, run_at, id) > (candidates.priority, candidates.run_at, candidates.id)
        ORDER BY priority, run_at, id
        LIMIT 1
      ) AS j
      FROM candidates
      WHERE candidates.id IS NOT NULL
      LIMIT 1
    ) AS t1
  )
)
SELECT priority, run_at, id, type, args, error_count, last_error
FROM candidates
WHERE locked
LIMIT 1
`

// Store is the gorm-backed storage for que_jobs. It serves both sides of
// the queue: enqueue-time inserts and the worker's claim lifecycle.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var (
	_ worker.Store   = (*Store)(nil)
	_ queue.Inserter = (*Store)(nil)
)

// Insert persists a new job row, then pings the notify channel so an idle
// worker picks it up without waiting out its poll interval. Constraint
// violations propagate to the caller; a failed notify does not fail the
// enqueue.
func (s *Store) Insert(ctx context.Context, j *models.Job) error {
	if err := s.db.WithContext(ctx).Create(j).Error; err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	s.notify(ctx)
	return nil
}

func (s *Store) notify(ctx context.Context) {
	if s.db.Dialector.Name() != "postgres" {
		return
	}
	s.db.WithContext(ctx).Exec("SELECT pg_notify(?, '')", config.NotifyChannel)
}

// FindJob fetches a job row by id, for inspection. Completed jobs are
// deleted, so not-found is an expected outcome.
func (s *Store) FindJob(ctx context.Context, id int64) (*models.Job, error) {
	var j models.Job
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %w", err)
		}
		return nil, fmt.Errorf("find job: %w", err)
	}
	return &j, nil
}

// PendingCount returns the number of rows currently in the table, eligible
// or not. Successful jobs are deleted, so this is the backlog gauge.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Job{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}

// Checkout pins one pooled connection for the duration of fn. Advisory
// locks are scoped to the session, so every operation of a work attempt has
// to run on this single connection.
func (s *Store) Checkout(ctx context.Context, fn func(worker.Conn) error) error {
	return s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		return fn(&storeConn{tx: tx})
	})
}

// storeConn is one checked-out connection. All methods run on the same
// underlying session.
type storeConn struct {
	tx *gorm.DB
}

var _ worker.Conn = (*storeConn)(nil)

func (c *storeConn) LockJob(ctx context.Context) (*models.Job, error) {
	var j models.Job
	res := c.tx.WithContext(ctx).Raw(lockJobSQL).Scan(&j)
	if res.Error != nil {
		return nil, fmt.Errorf("lock job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &j, nil
}

func (c *storeConn) StillExists(ctx context.Context, key models.JobKey) (bool, error) {
	var n int64
	err := c.tx.WithContext(ctx).Model(&models.Job{}).
		Where("priority = ? AND run_at = ? AND id = ?", key.Priority, key.RunAt, key.ID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check job: %w", err)
	}
	return n > 0, nil
}

func (c *storeConn) Destroy(ctx context.Context, key models.JobKey) error {
	err := c.tx.WithContext(ctx).
		Where("priority = ? AND run_at = ? AND id = ?", key.Priority, key.RunAt, key.ID).
		Delete(&models.Job{}).Error
	if err != nil {
		return fmt.Errorf("destroy job: %w", err)
	}
	return nil
}

func (c *storeConn) RecordFailure(ctx context.Context, key models.JobKey, errorCount int, runAt time.Time, message string) error {
	err := c.tx.WithContext(ctx).Model(&models.Job{}).
		Where("priority = ? AND run_at = ? AND id = ?", key.Priority, key.RunAt, key.ID).
		Updates(map[string]any{
			"error_count": errorCount,
			"run_at":      runAt,
			"last_error":  message,
		}).Error
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (c *storeConn) Unlock(ctx context.Context, id int64) error {
	if err := c.tx.WithContext(ctx).Exec("SELECT pg_advisory_unlock(?)", id).Error; err != nil {
		return fmt.Errorf("unlock job: %w", err)
	}
	return nil
}
