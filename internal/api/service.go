package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/FooBarWidget/que/common"
	"github.com/FooBarWidget/que/internal/dto"
	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/models"
	"github.com/FooBarWidget/que/internal/queue"
)

type QueueService struct {
	enqueuer *queue.Enqueuer
	store    StoreReader
}

func NewQueueService(enqueuer *queue.Enqueuer, store StoreReader) *QueueService {
	return &QueueService{enqueuer: enqueuer, store: store}
}

var _ QueueServiceInterface = (*QueueService)(nil)

// EnqueueJob validates the request, decodes the argument array, and inserts
// one job through the enqueuer. Scheduling options from the request body
// take the same precedence as programmatic options: explicit beats
// type-level default beats global default.
func (s *QueueService) EnqueueJob(ctx context.Context, req *dto.EnqueueRequest) (*dto.JobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	var args []any
	if len(req.Args) > 0 {
		decoded, err := job.DecodeArgs(req.Args)
		if err != nil {
			return nil, common.Errf(http.StatusBadRequest, "args must be a JSON array")
		}
		args = decoded
	}

	var opts []queue.Option
	if req.RunAt != nil {
		opts = append(opts, queue.RunAt(*req.RunAt))
	}
	if req.Priority != nil {
		opts = append(opts, queue.Priority(*req.Priority))
	}

	j, err := s.enqueuer.Enqueue(ctx, req.Type, args, opts...)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, common.Errf(http.StatusRequestTimeout, "request was canceled")
		default:
			return nil, common.Errf(http.StatusInternalServerError, "failed to enqueue job")
		}
	}

	return toResponse(j), nil
}

// GetJob fetches one job row. Successful jobs are deleted on completion, so
// a 404 here can simply mean the job already ran.
func (s *QueueService) GetJob(ctx context.Context, id int64) (*dto.JobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	j, err := s.store.FindJob(ctx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
		}
		if strings.Contains(err.Error(), "job not found") {
			return nil, common.Errf(http.StatusNotFound, "job not found")
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to get job")
	}

	return toResponse(j), nil
}

// Stats reports the current backlog size.
func (s *QueueService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	n, err := s.store.PendingCount(ctx)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to count jobs")
	}
	return &dto.StatsResponse{Pending: n}, nil
}

func toResponse(j *models.Job) *dto.JobResponse {
	resp := &dto.JobResponse{
		ID:         j.ID,
		Type:       j.Type,
		Args:       []byte(j.Args),
		RunAt:      j.RunAt,
		Priority:   j.Priority,
		ErrorCount: j.ErrorCount,
	}
	if j.LastError.Valid {
		resp.LastError = j.LastError.String
	}
	return resp
}
