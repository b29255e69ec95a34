package mocks

import (
	"context"

	"github.com/FooBarWidget/que/internal/dto"
	"github.com/stretchr/testify/mock"
)

// QueueServiceMock satisfies api.QueueServiceInterface.
type QueueServiceMock struct {
	mock.Mock
}

func (m *QueueServiceMock) EnqueueJob(ctx context.Context, req *dto.EnqueueRequest) (*dto.JobResponse, error) {
	args := m.Called(ctx, req)

	resp, _ := args.Get(0).(*dto.JobResponse)
	return resp, args.Error(1)
}

func (m *QueueServiceMock) GetJob(ctx context.Context, id int64) (*dto.JobResponse, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResponse)
	return resp, args.Error(1)
}

func (m *QueueServiceMock) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	args := m.Called(ctx)

	resp, _ := args.Get(0).(*dto.StatsResponse)
	return resp, args.Error(1)
}
