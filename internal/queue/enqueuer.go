package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FooBarWidget/que/internal/config"
	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/models"
	"gorm.io/datatypes"
)

// Inserter is the store surface the enqueuer needs. Insert failures
// (constraint violations and the like) propagate to the caller unchanged.
type Inserter interface {
	Insert(ctx context.Context, j *models.Job) error
}

// Option overrides scheduling metadata for one enqueue call.
type Option func(*options)

type options struct {
	runAt    *time.Time
	priority *int
}

// RunAt schedules the job to become eligible at t instead of immediately.
func RunAt(t time.Time) Option {
	return func(o *options) { o.runAt = &t }
}

// Priority sets the job's claim priority; lower values are claimed first.
func Priority(p int) Option {
	return func(o *options) { o.priority = &p }
}

// Enqueuer builds job rows and inserts them. Scheduling metadata resolves
// explicit option > type-level default from the registry > global default.
type Enqueuer struct {
	store    Inserter
	registry *job.Registry
	now      func() time.Time
}

func NewEnqueuer(store Inserter, registry *job.Registry) *Enqueuer {
	return &Enqueuer{store: store, registry: registry, now: time.Now}
}

// Enqueue inserts one job of the named type. If the last positional arg is a
// map, its run_at/priority keys are consumed as scheduling options and any
// remaining keys are re-appended as a trailing map, so the argument shape
// seen by the job body is preserved.
func (e *Enqueuer) Enqueue(ctx context.Context, typ string, args []any, opts ...Option) (*models.Job, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	args, trailing, err := extractScheduling(args, &o)
	if err != nil {
		return nil, err
	}
	if trailing != nil {
		args = append(args, trailing)
	}

	raw, err := job.EncodeArgs(args)
	if err != nil {
		return nil, err
	}

	j := &models.Job{
		Type:     typ,
		Args:     datatypes.JSON(raw),
		RunAt:    e.resolveRunAt(typ, o.runAt),
		Priority: e.resolvePriority(typ, o.priority),
	}

	if err := e.store.Insert(ctx, j); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return j, nil
}

func (e *Enqueuer) resolveRunAt(typ string, explicit *time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	if reg, err := e.registry.Lookup(typ); err == nil && reg.RunAt != nil {
		return reg.RunAt()
	}
	return e.now()
}

func (e *Enqueuer) resolvePriority(typ string, explicit *int) int {
	if explicit != nil {
		return *explicit
	}
	if reg, err := e.registry.Lookup(typ); err == nil && reg.Priority != nil {
		return *reg.Priority
	}
	return config.DefaultPriority
}

// extractScheduling pops a trailing map off args, consuming its
// run_at/priority keys into o unless already set explicitly. The map minus
// those keys is returned for re-appending; nil means nothing to re-append.
func extractScheduling(args []any, o *options) ([]any, map[string]any, error) {
	if len(args) == 0 {
		return args, nil, nil
	}
	m, ok := args[len(args)-1].(map[string]any)
	if !ok {
		return args, nil, nil
	}
	args = args[:len(args)-1]

	rest := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "run_at":
			t, err := coerceTime(v)
			if err != nil {
				return nil, nil, fmt.Errorf("run_at option: %w", err)
			}
			if o.runAt == nil {
				o.runAt = &t
			}
		case "priority":
			p, err := coerceInt(v)
			if err != nil {
				return nil, nil, fmt.Errorf("priority option: %w", err)
			}
			if o.priority == nil {
				o.priority = &p
			}
		default:
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return args, nil, nil
	}
	return args, rest, nil
}

func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse %q: %w", t, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}

func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, err
		}
		return int(i), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
