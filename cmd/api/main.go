package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/FooBarWidget/que/internal/api"
	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/queue"
	"github.com/FooBarWidget/que/internal/storage/postgres"
	"github.com/FooBarWidget/que/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sethvargo/go-envconfig"
)

type apiConfig struct {
	Addr string `env:"API_ADDR,default=:8080"`
}

func main() {
	slog.Info("starting enqueue API")

	ctx := context.Background()

	var acfg apiConfig
	if err := envconfig.Process(ctx, &acfg); err != nil {
		slog.Error("failed to load api config", "error", err)
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
	enqueuer := queue.NewEnqueuer(store, job.NewRegistry())
	service := api.NewQueueService(enqueuer, store)
	handler := api.NewQueueHandler(service)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.ErrorHandler())
	handler.Register(r)

	slog.Info("listening", "addr", acfg.Addr)
	if err := r.Run(acfg.Addr); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
