// Package worker runs the pool of query workers. Each worker owns one
// database session and executes queries from the shared queue, retrying
// attempts that hit database failures.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/queryman/queryman/internal/config"
	"github.com/queryman/queryman/internal/database"
	"github.com/queryman/queryman/internal/handler"
	"github.com/queryman/queryman/internal/hostcache"
	"github.com/queryman/queryman/internal/metrics"
	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/store"
)

// Worker states, reported during startup.
const (
	stateStarting int32 = iota
	stateRunning
	stateDone
)

// startupPollInterval paces the startup gate while workers open their
// database sessions.
const startupPollInterval = 500 * time.Millisecond

// Config wires a pool together.
type Config struct {
	Workers     int
	MaxAttempts int
	Database    config.DatabaseConfig
	Queue       *query.Queue
	Hosts       *hostcache.Cache
	Metrics     *metrics.Collector
	Log         *slog.Logger
}

// Pool is a fixed set of query workers over one queue.
type Pool struct {
	cfg    Config
	stop   atomic.Bool
	wg     sync.WaitGroup
	states []atomic.Int32
}

// NewPool creates a pool. The worker count is clamped to what the
// database driver can usefully run concurrently.
func NewPool(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if limit := database.MaxConcurrency(cfg.Database.Driver); cfg.Workers > limit {
		cfg.Log.Warn("clamping worker count to driver concurrency limit",
			"driver", cfg.Database.Driver, "workers", cfg.Workers, "limit", limit)
		cfg.Workers = limit
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pool{cfg: cfg}
}

// Start launches the workers and blocks until every worker has opened its
// database session. A worker that fails to start aborts the whole pool.
func (p *Pool) Start(ctx context.Context) error {
	p.states = make([]atomic.Int32, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	ticker := time.NewTicker(startupPollInterval)
	defer ticker.Stop()
	for {
		running := 0
		for i := range p.states {
			switch p.states[i].Load() {
			case stateRunning:
				running++
			case stateDone:
				p.Stop()
				return fmt.Errorf("worker %d failed to start", i)
			}
		}
		if running == len(p.states) {
			p.cfg.Log.Info("worker pool started", "workers", running)
			return nil
		}
		select {
		case <-ctx.Done():
			p.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop flags the workers, wakes them, waits for them to exit and fails
// whatever is left in the queue.
func (p *Pool) Stop() {
	p.stop.Store(true)
	p.cfg.Queue.WakeAll()
	p.wg.Wait()
	for _, q := range p.cfg.Queue.Drain() {
		q.Fail()
		q.Finish()
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	defer p.states[id].Store(stateDone)

	log := p.cfg.Log.With("worker", id)

	sess, err := database.Open(p.cfg.Database)
	if err != nil {
		log.Error("opening database session failed", "err", err)
		return
	}
	defer sess.Close()

	env := &handler.Env{
		Store: store.New(sess),
		Hosts: p.cfg.Hosts,
		Log:   log,
	}
	p.states[id].Store(stateRunning)
	log.Debug("worker ready")

	for {
		q := p.cfg.Queue.Dequeue(p.stop.Load)
		if q == nil {
			return
		}
		p.execute(ctx, env, sess, q)
	}
}

// execute runs one query to completion. Attempts that leave the query
// pending are retried against a checkpointed session until the attempt
// budget runs out; whatever is still pending then goes out as FAILED.
func (p *Pool) execute(ctx context.Context, env *handler.Env, sess *database.Session, q *query.Query) {
	start := time.Now()

	h, ok := handler.Dispatch(q.Type)
	if !ok {
		env.Log.Warn("query type has no handler", "query", q.Type.String())
	}
	q.Pend()
	if ok {
		for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
			if !sess.Checkpoint(ctx) {
				env.Log.Warn("database session unavailable",
					"query", q.Type.String(), "attempt", attempt)
				break
			}
			if attempt > 1 {
				env.Log.Warn("retrying query",
					"query", q.Type.String(), "attempt", attempt)
				p.cfg.Metrics.QueryRetried()
				q.RewindRequest()
			}
			h(ctx, env, q)
			if q.Status != query.StatusPending {
				break
			}
		}
	}
	if q.Status == query.StatusPending {
		q.Fail()
	}

	p.cfg.Metrics.QueryCompleted(q.Type.String(), q.Status.String(), time.Since(start))
	q.Finish()
}
