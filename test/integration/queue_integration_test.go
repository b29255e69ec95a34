package integration

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/models"
	"github.com/FooBarWidget/que/internal/queue"
	"github.com/FooBarWidget/que/internal/storage/postgres"
	"github.com/FooBarWidget/que/internal/worker"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	pool.MaxWait = 60 * time.Second

	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	pg, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=testuser",
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_DB=que_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres container: %s", err)
	}

	dsn := fmt.Sprintf(
		"host=localhost user=testuser password=testpass dbname=que_test port=%s sslmode=disable TimeZone=UTC",
		pg.GetPort("5432/tcp"),
	)

	if err := pool.Retry(func() error {
		gdb, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return err
		}

		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			return err
		}

		if err := postgres.Migrate(gdb); err != nil {
			return err
		}

		testDB = gdb
		return nil
	}); err != nil {
		log.Fatalf("Could not connect to postgres: %s", err)
	}

	code := m.Run()

	if err := pool.Purge(pg); err != nil {
		log.Fatalf("Could not purge postgres container: %s", err)
	}

	os.Exit(code)
}

func resetTable(t *testing.T) *postgres.Store {
	t.Helper()
	require.NoError(t, testDB.Exec("TRUNCATE que_jobs RESTART IDENTITY").Error)
	return postgres.NewStore(testDB)
}

func enqueue(t *testing.T, store *postgres.Store, registry *job.Registry, typ string, args []any, opts ...queue.Option) *models.Job {
	t.Helper()
	j, err := queue.NewEnqueuer(store, registry).Enqueue(context.Background(), typ, args, opts...)
	require.NoError(t, err)
	return j
}

func TestClaimOrdering(t *testing.T) {
	store := resetTable(t)
	ctx := context.Background()

	registry := job.NewRegistry()
	var mu sync.Mutex
	var order []string
	registry.RegisterFunc("record", func(ctx context.Context, exec *job.Execution) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, exec.Args[0].(string))
		return nil
	})

	enqueue(t, store, registry, "record", []any{"low"}, queue.Priority(10))
	enqueue(t, store, registry, "record", []any{"high"}, queue.Priority(1))
	enqueue(t, store, registry, "record", []any{"mid"}, queue.Priority(5))

	w := worker.NewWorker(1, store, registry)
	for w.WorkOne(ctx) {
	}

	assert.Equal(t, []string{"high", "mid", "low"}, order)

	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "successful jobs should be deleted")
}

func TestFutureJobNotClaimable(t *testing.T) {
	store := resetTable(t)
	registry := job.NewRegistry()

	enqueue(t, store, registry, "noop", nil, queue.RunAt(time.Now().Add(time.Hour)))

	w := worker.NewWorker(1, store, registry)
	assert.False(t, w.WorkOne(context.Background()))

	n, err := store.PendingCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConcurrentClaim_Exclusive(t *testing.T) {
	store := resetTable(t)
	ctx := context.Background()
	registry := job.NewRegistry()

	enqueue(t, store, registry, "only_one", nil)

	// Hold the claim on one session; a second session must see no work.
	claimed := make(chan *models.Job)
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- store.Checkout(ctx, func(conn worker.Conn) error {
			j, err := conn.LockJob(ctx)
			if err != nil {
				return err
			}
			claimed <- j
			<-release
			return conn.Unlock(ctx, j.ID)
		})
	}()

	first := <-claimed
	require.NotNil(t, first)

	err := store.Checkout(ctx, func(conn worker.Conn) error {
		j, err := conn.LockJob(ctx)
		require.NoError(t, err)
		assert.Nil(t, j, "second session must not claim a locked job")
		return nil
	})
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-errCh)

	// With the lock released the job is claimable again.
	err = store.Checkout(ctx, func(conn worker.Conn) error {
		j, err := conn.LockJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, first.ID, j.ID)
		return conn.Unlock(ctx, j.ID)
	})
	require.NoError(t, err)
}

func TestDeleteRaceDuringClaim(t *testing.T) {
	store := resetTable(t)
	ctx := context.Background()
	registry := job.NewRegistry()

	j := enqueue(t, store, registry, "racer", nil)

	err := store.Checkout(ctx, func(conn worker.Conn) error {
		locked, err := conn.LockJob(ctx)
		require.NoError(t, err)
		require.NotNil(t, locked)

		// Another session deletes the row while we hold the lock, as a
		// finished worker would after our claim query took its snapshot.
		require.NoError(t, testDB.Exec(
			"DELETE FROM que_jobs WHERE id = ?", j.ID).Error)

		exists, err := conn.StillExists(ctx, locked.Key())
		require.NoError(t, err)
		assert.False(t, exists)

		return conn.Unlock(ctx, locked.ID)
	})
	require.NoError(t, err)
}

func TestFailureReschedulesAndReleasesLock(t *testing.T) {
	store := resetTable(t)
	ctx := context.Background()

	registry := job.NewRegistry()
	registry.RegisterFunc("explode", func(ctx context.Context, exec *job.Execution) error {
		return fmt.Errorf("out of cheese")
	})

	j := enqueue(t, store, registry, "explode", nil)
	before := time.Now()

	w := worker.NewWorker(1, store, registry)
	assert.True(t, w.WorkOne(ctx))

	failed, err := store.FindJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, failed.ErrorCount)
	assert.Contains(t, failed.LastError.String, "out of cheese")
	// errorCount 1 -> 1^4+3 = 4s backoff
	assert.WithinDuration(t, before.Add(4*time.Second), failed.RunAt, 2*time.Second)

	// The advisory lock must be gone: another session can take it directly.
	var got bool
	require.NoError(t, testDB.Raw(
		"SELECT pg_try_advisory_lock(?)", j.ID).Scan(&got).Error)
	assert.True(t, got, "lock should have been released after the failed attempt")
	require.NoError(t, testDB.Exec(
		"SELECT pg_advisory_unlock(?)", j.ID).Error)

	// Not yet eligible, so there is no work to claim.
	assert.False(t, w.WorkOne(ctx))

	// Once the backoff elapses the job is claimable again. Rewind run_at
	// instead of sleeping out the delay.
	require.NoError(t, testDB.Exec(
		"UPDATE que_jobs SET run_at = now() - interval '1 second' WHERE id = ?", j.ID).Error)
	assert.True(t, w.WorkOne(ctx))

	failed, err = store.FindJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, failed.ErrorCount)
}

func TestWorkersDrainQueueConcurrently(t *testing.T) {
	store := resetTable(t)
	ctx := context.Background()

	const jobs = 20
	var mu sync.Mutex
	seen := make(map[string]int)

	registry := job.NewRegistry()
	registry.RegisterFunc("count_me", func(ctx context.Context, exec *job.Execution) error {
		mu.Lock()
		defer mu.Unlock()
		seen[exec.Args[0].(string)]++
		return nil
	})

	for i := 0; i < jobs; i++ {
		enqueue(t, store, registry, "count_me", []any{fmt.Sprintf("job-%d", i)})
	}

	var wg sync.WaitGroup
	for i := 1; i <= 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := worker.NewWorker(id, store, registry)
			for w.WorkOne(ctx) {
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for name, count := range seen {
		assert.Equal(t, 1, count, "job %s must run exactly once", name)
	}

	n, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestEnqueueDefaultsPersisted(t *testing.T) {
	store := resetTable(t)
	registry := job.NewRegistry()

	before := time.Now()
	j := enqueue(t, store, registry, "noop", []any{"x", 1})

	found, err := store.FindJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, found.Priority)
	assert.WithinDuration(t, before, found.RunAt, 2*time.Second)
	assert.JSONEq(t, `["x",1]`, string(found.Args))
}
