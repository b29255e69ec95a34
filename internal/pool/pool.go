package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FooBarWidget/que/internal/config"
	"github.com/FooBarWidget/que/internal/job"
	"github.com/FooBarWidget/que/internal/worker"
	"github.com/lib/pq"
)

// Counter is the store surface the pool's stats loop needs.
type Counter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// WorkerPool runs a fixed set of workers against one store. When a listen
// DSN is configured it also subscribes to the enqueue NOTIFY channel and
// nudges an idle worker on each notification, so fresh jobs start without
// waiting out a poll interval. Mutual exclusion between workers (in this
// process and any other) is entirely the store's advisory locks; the pool
// does no coordination of its own.
type WorkerPool struct {
	workers       []*worker.Worker
	store         worker.Store
	listenDSN     string
	statsInterval time.Duration
	listener      *pq.Listener
	next          int
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

type PoolOption func(*WorkerPool)

// WithListener subscribes the pool to enqueue notifications on dsn.
func WithListener(dsn string) PoolOption {
	return func(p *WorkerPool) { p.listenDSN = dsn }
}

// WithStatsInterval sets how often the backlog size is logged. Zero
// disables the stats loop.
func WithStatsInterval(d time.Duration) PoolOption {
	return func(p *WorkerPool) { p.statsInterval = d }
}

func NewWorkerPool(count int, store worker.Store, registry *job.Registry, opts []worker.WorkerOption, poolOpts ...PoolOption) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{store: store, statsInterval: 30 * time.Second, ctx: ctx, cancel: cancel}

	for _, opt := range poolOpts {
		opt(p)
	}

	for i := 1; i <= count; i++ {
		p.workers = append(p.workers, worker.NewWorker(i, store, registry, opts...))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start(p.ctx)
	}

	if p.listenDSN != "" {
		p.listener = pq.NewListener(p.listenDSN, 10*time.Second, time.Minute,
			func(ev pq.ListenerEventType, err error) {
				if err != nil {
					slog.Warn("queue listener event", "event", ev, "error", err)
				}
			})
		if err := p.listener.Listen(config.NotifyChannel); err != nil {
			slog.Error("listen failed, falling back to polling only", "error", err)
			p.listener.Close()
			p.listener = nil
		} else {
			p.wg.Add(1)
			go p.notifyLoop()
		}
	}

	if c, ok := p.store.(Counter); ok && p.statsInterval > 0 {
		p.wg.Add(1)
		go p.statsLoop(c)
	}
}

// notifyLoop nudges one worker per notification, round-robin. A nudge that
// finds every worker busy is dropped: busy workers re-poll immediately after
// finishing anyway.
func (p *WorkerPool) notifyLoop() {
	defer p.wg.Done()
	for {
		select {
		case _, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			for range p.workers {
				w := p.workers[p.next%len(p.workers)]
				p.next++
				if w.Nudge() {
					break
				}
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) statsLoop(c Counter) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := c.PendingCount(p.ctx)
			if err != nil {
				slog.Error("pending count", "error", err)
				continue
			}
			slog.Info("queue backlog", "pending", n, "workers", len(p.workers))
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) Stop() {
	p.cancel()
	if p.listener != nil {
		p.listener.Close()
	}
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
