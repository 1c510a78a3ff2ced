// Package worker resolves guild levels from owner profiles concurrently.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/GungHo1205/manarion-guild-stats/internal/adapters/mq/queue"
	"github.com/GungHo1205/manarion-guild-stats/internal/domain/model"
	"github.com/GungHo1205/manarion-guild-stats/pkg/logger"
	"github.com/GungHo1205/manarion-guild-stats/pkg/metrics"
)

const defaultWorkerCount = 2

// Fetcher loads the boost profile of a guild owner.
type Fetcher interface {
	FetchPlayer(ctx context.Context, playerID int64) (model.PlayerBoostProfile, error)
}

// Calculator derives Nexus and Study levels from a profile.
type Calculator interface {
	Levels(p model.PlayerBoostProfile) (nexus, study int64)
}

// Result is the resolved level data of one job.
type Result struct {
	Job    model.FetchJob
	Levels model.GuildLevels
}

// Sink receives results. Deliver is called concurrently by all workers.
type Sink interface {
	Deliver(ctx context.Context, r Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Result)

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, r Result) { f(ctx, r) }

// Queue defines how workers receive jobs. Taken is called once per job
// received.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
	Taken()
}

// InMemoryWorker processes fetch jobs one at a time.
type InMemoryWorker struct {
	queue   Queue
	fetcher Fetcher
	calc    Calculator
	sink    Sink
	name    string
	logger  logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, fetcher Fetcher, calc Calculator, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:   q,
		fetcher: fetcher,
		calc:    calc,
		sink:    sink,
		name:    "worker",
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run consumes jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.queue.Taken()
			if err := w.process(ctx, job); err != nil {
				w.logger.Warn(ctx, "guild skipped",
					logger.Int64("guild_id", job.Guild.ID),
					logger.String("guild", job.Guild.Name),
					logger.Error(err),
				)
			}
		}
	}
}

// process fetches the owner profile of one guild and delivers its levels.
// A failed fetch delivers nothing.
func (w *InMemoryWorker) process(ctx context.Context, job model.FetchJob) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	profile, err := w.fetcher.FetchPlayer(ctx, job.Guild.OwnerID)
	if err != nil {
		metrics.RecordErrorByComponent("worker", "fetch_error")
		return fmt.Errorf("fetch owner %d: %w", job.Guild.OwnerID, err)
	}

	nexus, study := w.calc.Levels(profile)
	w.sink.Deliver(ctx, Result{
		Job: job,
		Levels: model.GuildLevels{
			GuildID:       job.Guild.ID,
			GuildName:     job.Guild.Name,
			GuildLevel:    job.Guild.Level,
			TotalUpgrades: job.Guild.TotalUpgrades,
			NexusLevel:    nexus,
			StudyLevel:    study,
		},
	})
	return nil
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. opts apply to every worker.
func NewPool(workerCount int, q Queue, fetcher Fetcher, calc Calculator, sink Sink, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, fetcher, calc, sink, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Run starts all workers and blocks until they return: the queue was
// closed and drained, or ctx is done. It returns ctx.Err() in the latter case.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	metrics.UpdateWorkerActiveCount(len(p.workers))
	defer metrics.UpdateWorkerActiveCount(0)

	for _, w := range p.workers {
		wg.Add(1)
		go func(w *InMemoryWorker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		p.logger.Warn(ctx, "worker pool interrupted", logger.Error(err))
		return err
	}
	return nil
}
