package mocks

import (
	"context"
	"time"

	"github.com/FooBarWidget/que/internal/models"
	"github.com/FooBarWidget/que/internal/worker"
	"github.com/stretchr/testify/mock"
)

// StoreMock satisfies worker.Store. Checkout hands the embedded ConnMock to
// the callback, mirroring the real store pinning one connection per attempt.
type StoreMock struct {
	mock.Mock
	Conn *ConnMock
}

func NewStoreMock() *StoreMock {
	return &StoreMock{Conn: &ConnMock{}}
}

func (m *StoreMock) Checkout(ctx context.Context, fn func(worker.Conn) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m.Conn)
}

type ConnMock struct {
	mock.Mock
}

func (m *ConnMock) LockJob(ctx context.Context) (*models.Job, error) {
	args := m.Called(ctx)

	j, _ := args.Get(0).(*models.Job)
	return j, args.Error(1)
}

func (m *ConnMock) StillExists(ctx context.Context, key models.JobKey) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *ConnMock) Destroy(ctx context.Context, key models.JobKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *ConnMock) RecordFailure(ctx context.Context, key models.JobKey, errorCount int, runAt time.Time, message string) error {
	args := m.Called(ctx, key, errorCount, runAt, message)
	return args.Error(0)
}

func (m *ConnMock) Unlock(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
