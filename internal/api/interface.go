package api

import (
	"context"

	"github.com/FooBarWidget/que/internal/dto"
	"github.com/FooBarWidget/que/internal/models"
	"github.com/gin-gonic/gin"
)

// QueueServiceInterface defines the contract for queue business logic
// exposed over HTTP.
type QueueServiceInterface interface {
	EnqueueJob(ctx context.Context, req *dto.EnqueueRequest) (*dto.JobResponse, error)
	GetJob(ctx context.Context, id int64) (*dto.JobResponse, error)
	Stats(ctx context.Context) (*dto.StatsResponse, error)
}

// StoreReader is the read-side store surface the service needs beyond the
// enqueuer itself.
type StoreReader interface {
	FindJob(ctx context.Context, id int64) (*models.Job, error)
	PendingCount(ctx context.Context) (int64, error)
}

// QueueHandlerInterface defines the contract for HTTP request handlers.
type QueueHandlerInterface interface {
	Enqueue(c *gin.Context)
	Get(c *gin.Context)
	Stats(c *gin.Context)
}
