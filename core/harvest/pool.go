package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"listing-harvester/core/record"

	"go.uber.org/zap"
)

// task is one fetch attempt handed to a worker.
type task struct {
	key     record.EntityKey
	attempt int
}

// outcome is what a worker reports back for a task.
type outcome struct {
	task     task
	fetched  record.Fetched
	err      error
	duration time.Duration
}

// Pool runs W workers that execute fetch attempts. The caller keeps at most
// Size() tasks outstanding, so Submit and result delivery never block.
type Pool struct {
	fetcher Fetcher
	session Session
	size    int
	logger  *zap.Logger

	tasks   chan task
	results chan outcome
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPool creates a pool of size workers. Size below 1 is raised to 1.
func NewPool(fetcher Fetcher, session Session, size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		fetcher: fetcher,
		session: session,
		size:    size,
		logger:  logger,
		tasks:   make(chan task, size),
		results: make(chan outcome, size),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Start launches the workers. Fetches run with ctx; pass a context that is
// detached from run cancellation so in-flight attempts can finish.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

// Submit queues a task.
func (p *Pool) Submit(t task) {
	p.tasks <- t
}

// Results delivers one outcome per submitted task.
func (p *Pool) Results() <-chan outcome {
	return p.results
}

// Close stops accepting tasks and waits for the workers to exit.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
		close(p.results)
	})
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for t := range p.tasks {
		start := time.Now()
		fetched, err := p.fetch(ctx, t.key)
		if err != nil {
			log.Debug("Fetch failed",
				zap.String("key", string(t.key)),
				zap.Int("attempt", t.attempt),
				zap.Error(err))
		}
		p.results <- outcome{task: t, fetched: fetched, err: err, duration: time.Since(start)}
	}
}

// fetch calls the fetcher and turns a panic into a permanent failure for the key.
func (p *Pool) fetch(ctx context.Context, key record.EntityKey) (fetched record.Fetched, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(key, fmt.Errorf("fetcher panic: %v", r))
		}
	}()
	return p.fetcher.FetchEntity(ctx, p.session, key)
}
