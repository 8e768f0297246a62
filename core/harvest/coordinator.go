package harvest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/metrics"
	"listing-harvester/core/record"

	"go.uber.org/zap"
)

// State is the lifecycle phase of a harvest run.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateDraining     State = "draining"
	StateCompleted    State = "completed"
)

// Options tunes a Coordinator.
type Options struct {
	// Workers is the number of concurrent fetches (default 4).
	Workers int
	// MaxAttempts bounds attempts per key within one run (default 3).
	MaxAttempts int
	// Backoff spaces transient retries.
	Backoff Backoff
	// SkipFailed also skips keys an earlier run marked failed-permanent.
	SkipFailed bool
	// Clock defaults to the wall clock.
	Clock Clock
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = 4
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 3
	}
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	return o
}

// Summary is the outcome of a run. It is returned even when the run stops early.
type Summary struct {
	State       State              `json:"state"`
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Skipped     int                `json:"skipped"`
	Pending     int                `json:"pending"`
	Attempts    int                `json:"attempts"`
	FailedKeys  []record.EntityKey `json:"failed_keys,omitempty"`
	Interrupted bool               `json:"interrupted"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
}

// Coordinator drives fetches for a set of keys to a terminal status,
// persisting every transition in the checkpoint store.
type Coordinator struct {
	store   checkpoint.Store
	sink    RecordSink
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	state atomic.Value
}

// NewCoordinator creates a coordinator. metrics may be nil.
func NewCoordinator(store checkpoint.Store, sink RecordSink, fetcher Fetcher, opts Options, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	c := &Coordinator{
		store:   store,
		sink:    sink,
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		logger:  logger.Named("harvest"),
		metrics: m,
	}
	c.state.Store(StateIdle)
	return c
}

// State returns the current run state.
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

func (c *Coordinator) setState(s State) {
	c.state.Store(s)
	c.metrics.SetState(string(s))
	c.logger.Debug("Harvest state", zap.String("state", string(s)))
}

// Run harvests keys with the shared session.
//
// Cancelling ctx stops dispatch; attempts already in flight finish and are
// recorded, and keys never started stay pending. An *AuthError from the
// source stops dispatch the same way and is returned alongside the summary.
func (c *Coordinator) Run(ctx context.Context, session Session, keys []record.EntityKey) (Summary, error) {
	clock := c.opts.Clock
	c.setState(StateInitializing)

	summary := Summary{StartedAt: clock.Now()}
	entries := checkpoint.LoadOrEmpty(ctx, c.store, c.logger)

	queue := &retryQueue{}
	seen := make(map[record.EntityKey]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summary.Total++

		if e, ok := entries[key]; ok {
			if e.Status == checkpoint.StatusSucceeded || (c.opts.SkipFailed && e.Status == checkpoint.StatusFailed) {
				summary.Skipped++
				continue
			}
		}
		queue.push(key, 1, summary.StartedAt)
	}
	c.metrics.KeysSkipped(summary.Skipped)

	c.logger.Info("Harvest starting",
		zap.Int("total", summary.Total),
		zap.Int("queued", queue.len()),
		zap.Int("skipped", summary.Skipped),
		zap.Int("workers", c.opts.Workers),
		zap.String("session", session.ID()))

	// Fetches and checkpoint writes outlive cancellation of ctx.
	work := context.WithoutCancel(ctx)

	pool := NewPool(c.fetcher, session, c.opts.Workers, c.logger)
	pool.Start(work)
	defer pool.Close()

	c.setState(StateRunning)

	var (
		fatal    error
		stopping bool
		inFlight = make(map[record.EntityKey]struct{}, c.opts.Workers)
		done     = ctx.Done()
	)

	stop := func(reason error) {
		if stopping {
			return
		}
		stopping = true
		done = nil
		c.setState(StateDraining)
		c.logger.Warn("Harvest stopping, draining in-flight fetches",
			zap.Int("in_flight", len(inFlight)),
			zap.Error(reason))
	}

	for {
		if !stopping && ctx.Err() != nil {
			summary.Interrupted = true
			stop(ctx.Err())
		}

		if !stopping {
			now := clock.Now()
			for len(inFlight) < pool.Size() {
				t, ok := queue.popReady(now)
				if !ok {
					break
				}
				inFlight[t.key] = struct{}{}
				pool.Submit(t)
			}
		}

		if len(inFlight) == 0 && (stopping || queue.len() == 0) {
			break
		}

		var wake <-chan time.Time
		if !stopping && len(inFlight) < pool.Size() {
			if at, ok := queue.next(); ok {
				wake = clock.After(at.Sub(clock.Now()))
			}
		}

		select {
		case out := <-pool.Results():
			delete(inFlight, out.task.key)
			summary.Attempts++
			if err := c.settle(work, out, queue, &summary); err != nil {
				fatal = err
				stop(err)
			}
		case <-wake:
		case <-done:
			summary.Interrupted = true
			stop(ctx.Err())
		}
	}

	summary.Pending += queue.len()
	summary.FinishedAt = clock.Now()
	c.setState(StateCompleted)
	summary.State = StateCompleted

	c.logger.Info("Harvest completed",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("pending", summary.Pending),
		zap.Int("attempts", summary.Attempts),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	if fatal != nil {
		return summary, fatal
	}
	if summary.Interrupted {
		return summary, fmt.Errorf("harvest interrupted: %w", ctx.Err())
	}
	return summary, nil
}

// settle records the result of one attempt. A non-nil return is an auth
// failure that must stop the run.
func (c *Coordinator) settle(ctx context.Context, out outcome, queue *retryQueue, summary *Summary) error {
	key, attempt := out.task.key, out.task.attempt
	log := c.logger.With(zap.String("key", string(key)), zap.Int("attempt", attempt))

	err := out.err
	if err == nil {
		if perr := c.sink.Put(ctx, out.fetched); perr != nil {
			err = Transient(key, fmt.Errorf("failed to store record: %w", perr))
		}
	}

	switch {
	case err == nil:
		c.metrics.ObserveFetch("success", out.duration)
		c.record(ctx, log, key, checkpoint.StatusSucceeded, attempt)
		c.metrics.KeySettled(string(checkpoint.StatusSucceeded))
		summary.Succeeded++
		log.Debug("Fetched", zap.Int("children", len(out.fetched.Children)))
		return nil

	case IsAuth(err):
		c.metrics.ObserveFetch("auth", out.duration)
		c.record(ctx, log, key, checkpoint.StatusPending, attempt)
		summary.Pending++
		return err

	case Classify(err) == KindPermanent:
		c.metrics.ObserveFetch("permanent", out.duration)
		c.fail(ctx, log, key, attempt, err, summary)
		return nil

	default:
		c.metrics.ObserveFetch("transient", out.duration)
		if attempt >= c.opts.MaxAttempts {
			c.fail(ctx, log, key, attempt, err, summary)
			return nil
		}
		c.record(ctx, log, key, checkpoint.StatusPending, attempt)
		delay := c.opts.Backoff.Delay(attempt)
		queue.push(key, attempt+1, c.opts.Clock.Now().Add(delay))
		log.Info("Retry scheduled", zap.Duration("delay", delay), zap.Error(err))
		return nil
	}
}

func (c *Coordinator) fail(ctx context.Context, log *zap.Logger, key record.EntityKey, attempt int, err error, summary *Summary) {
	c.record(ctx, log, key, checkpoint.StatusFailed, attempt)
	c.metrics.KeySettled(string(checkpoint.StatusFailed))
	summary.Failed++
	summary.FailedKeys = append(summary.FailedKeys, key)
	log.Warn("Fetch failed permanently", zap.Error(err))
}

// record persists a transition. A failed write is logged; the next run
// will redo the key.
func (c *Coordinator) record(ctx context.Context, log *zap.Logger, key record.EntityKey, status checkpoint.Status, attempt int) {
	if err := c.store.Record(ctx, key, status, attempt); err != nil {
		log.Error("Failed to write checkpoint", zap.String("status", string(status)), zap.Error(err))
	}
}
