package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/models"
	"github.com/FooBarWidget/que/internal/pool"
	"github.com/FooBarWidget/que/internal/storage/postgres"
	"github.com/FooBarWidget/que/internal/worker"
	"github.com/sethvargo/go-envconfig"
)

type workerConfig struct {
	Workers         int           `env:"MAX_WORKERS,default=4"`
	PollInterval    time.Duration `env:"POLL_INTERVAL,default=1s"`
	MaxPollInterval time.Duration `env:"MAX_POLL_INTERVAL,default=60s"`
	StatsInterval   time.Duration `env:"STATS_INTERVAL,default=30s"`
	ListenNotify    bool          `env:"LISTEN_NOTIFY,default=true"`
}

func main() {
	slog.Info("starting worker pool")

	ctx := context.Background()

	var wcfg workerConfig
	if err := envconfig.Process(ctx, &wcfg); err != nil {
		slog.Error("failed to load worker config", "error", err)
		os.Exit(1)
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		slog.Error("failed to load db config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.ConnectDB(ctx, dbCfg)
	if err != nil {
		slog.Error("db connection failed", "error", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	store := postgres.NewStore(db)

	// Deployments register their own job types here.
	registry := job.NewRegistry()
	registry.Register("noop", job.Registration{New: func() job.Runner { return job.Noop{} }})

	workerOpts := []worker.WorkerOption{
		worker.WithPollInterval(wcfg.PollInterval, wcfg.MaxPollInterval),
		worker.WithErrorHandler(func(err error, j *models.Job) {
			slog.Error("job execution failed", "job_id", j.ID, "type", j.Type, "error", err)
		}),
	}

	poolOpts := []pool.PoolOption{pool.WithStatsInterval(wcfg.StatsInterval)}
	if wcfg.ListenNotify {
		poolOpts = append(poolOpts, pool.WithListener(dbCfg.DSN()))
	}

	workerPool := pool.NewWorkerPool(wcfg.Workers, store, registry, workerOpts, poolOpts...)
	workerPool.Start()
	slog.Info("worker pool active", "workers", wcfg.Workers)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	workerPool.Stop()
	slog.Info("shutdown complete")
}
