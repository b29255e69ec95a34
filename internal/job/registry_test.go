package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	prio := 20
	r.Register("cleanup", Registration{
		New:      func() Runner { return Noop{} },
		Priority: &prio,
		RunAt:    func() time.Time { return time.Unix(0, 0) },
	})

	reg, err := r.Lookup("cleanup")
	require.NoError(t, err)
	assert.Equal(t, 20, *reg.Priority)
	assert.True(t, reg.RunAt().Equal(time.Unix(0, 0)))
	assert.NoError(t, reg.New().Run(context.Background(), nil))
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Lookup("ghost")
	require.Error(t, err)

	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Type)
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestRegistry_RegisterFunc(t *testing.T) {
	r := NewRegistry()
	called := false
	r.RegisterFunc("ping", func(ctx context.Context, exec *Execution) error {
		called = true
		return nil
	})

	reg, err := r.Lookup("ping")
	require.NoError(t, err)
	assert.Nil(t, reg.Priority)
	assert.Nil(t, reg.RunAt)

	require.NoError(t, reg.New().Run(context.Background(), nil))
	assert.True(t, called)
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("ping", func(ctx context.Context, exec *Execution) error {
		return errors.New("old")
	})
	r.RegisterFunc("ping", func(ctx context.Context, exec *Execution) error {
		return errors.New("new")
	})

	reg, err := r.Lookup("ping")
	require.NoError(t, err)
	assert.EqualError(t, reg.New().Run(context.Background(), nil), "new")
}

func TestExecution_Destroy(t *testing.T) {
	calls := 0
	exec := NewExecution(nil, nil, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.False(t, exec.Destroyed())
	require.NoError(t, exec.Destroy(context.Background()))
	assert.True(t, exec.Destroyed())

	// Idempotent: the row is only deleted once.
	require.NoError(t, exec.Destroy(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestExecution_DestroyError(t *testing.T) {
	exec := NewExecution(nil, nil, func(ctx context.Context) error {
		return errors.New("gone already")
	})

	assert.Error(t, exec.Destroy(context.Background()))
	assert.False(t, exec.Destroyed())
}
