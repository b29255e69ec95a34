package mocks

import (
	"context"

	"github.com/FooBarWidget/que/internal/models"
	"github.com/stretchr/testify/mock"
)

// InserterMock satisfies queue.Inserter.
type InserterMock struct {
	mock.Mock
}

func (m *InserterMock) Insert(ctx context.Context, j *models.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
