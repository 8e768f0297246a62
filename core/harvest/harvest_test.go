package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/metrics"
	"listing-harvester/core/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock advances instantly whenever someone waits on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waited []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waited = append(c.waited, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

type testSession struct{}

func (testSession) ID() string { return "test" }

// scriptedFetcher returns scripted errors per key and attempt. Attempts past
// the end of a script succeed. A script entry of nil also succeeds.
type scriptedFetcher struct {
	mu       sync.Mutex
	scripts  map[record.EntityKey][]error
	always   map[record.EntityKey]error
	calls    map[record.EntityKey]int
	active   map[record.EntityKey]int
	inFlight int
	peak     int
	overlap  bool
	hook     func(key record.EntityKey)
	delay    time.Duration
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		scripts: make(map[record.EntityKey][]error),
		always:  make(map[record.EntityKey]error),
		calls:   make(map[record.EntityKey]int),
		active:  make(map[record.EntityKey]int),
	}
}

func (f *scriptedFetcher) FetchEntity(ctx context.Context, session Session, key record.EntityKey) (record.Fetched, error) {
	f.mu.Lock()
	f.calls[key]++
	n := f.calls[key]
	f.active[key]++
	if f.active[key] > 1 {
		f.overlap = true
	}
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	var err error
	if e, ok := f.always[key]; ok {
		err = e
	} else if script := f.scripts[key]; n <= len(script) {
		err = script[n-1]
	}
	hook := f.hook
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if hook != nil {
		hook(key)
	}

	f.mu.Lock()
	f.active[key]--
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return record.Fetched{}, err
	}
	return record.Fetched{
		Record: record.RawRecord{Key: key, Fields: record.Fields{"slug": string(key)}},
		Children: []record.RawRecord{
			{Key: key + "-job", Fields: record.Fields{"company_slug": string(key)}},
		},
	}, nil
}

func (f *scriptedFetcher) count(key record.EntityKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *scriptedFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type memSink struct {
	mu      sync.Mutex
	records map[record.EntityKey]record.Fetched
	fail    map[record.EntityKey]int
}

func newMemSink() *memSink {
	return &memSink{records: make(map[record.EntityKey]record.Fetched), fail: make(map[record.EntityKey]int)}
}

func (s *memSink) Put(ctx context.Context, fetched record.Fetched) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[fetched.Record.Key] > 0 {
		s.fail[fetched.Record.Key]--
		return errors.New("disk full")
	}
	s.records[fetched.Record.Key] = fetched
	return nil
}

// orderingStore fails the test if a key is checkpointed succeeded before its record is stored.
type orderingStore struct {
	*checkpoint.Memory
	sink *memSink
	t    *testing.T
}

func (s *orderingStore) Record(ctx context.Context, key record.EntityKey, status checkpoint.Status, attempt int) error {
	if status == checkpoint.StatusSucceeded {
		s.sink.mu.Lock()
		_, ok := s.sink.records[key]
		s.sink.mu.Unlock()
		assert.True(s.t, ok, "record for %s must be stored before checkpoint", key)
	}
	return s.Memory.Record(ctx, key, status, attempt)
}

func keys(ks ...string) []record.EntityKey {
	out := make([]record.EntityKey, len(ks))
	for i, k := range ks {
		out[i] = record.EntityKey(k)
	}
	return out
}

func newTestCoordinator(store checkpoint.Store, sink RecordSink, f Fetcher, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = newFakeClock()
	}
	if opts.Backoff.Base == 0 {
		opts.Backoff = Backoff{Base: time.Second, Max: 30 * time.Second}
	}
	return NewCoordinator(store, sink, f, opts, zap.NewNop(), metrics.New())
}

func TestRunAllSucceed(t *testing.T) {
	ctx := context.Background()
	sink := newMemSink()
	store := &orderingStore{Memory: checkpoint.NewMemory(), sink: sink, t: t}
	f := newScriptedFetcher()

	c := newTestCoordinator(store, sink, f, Options{Workers: 3})
	assert.Equal(t, StateIdle, c.State())

	summary, err := c.Run(ctx, testSession{}, keys("a", "b", "c", "d", "e"))
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Pending)
	assert.Equal(t, 5, summary.Attempts)
	assert.False(t, summary.Interrupted)
	assert.Len(t, sink.records, 5)

	entries, _ := store.Load(ctx)
	for _, k := range keys("a", "b", "c", "d", "e") {
		assert.Equal(t, checkpoint.StatusSucceeded, entries[k].Status)
		assert.Equal(t, 1, entries[k].Attempts)
	}
}

func TestRetryBoundIsExact(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemory()
	clock := newFakeClock()
	f := newScriptedFetcher()
	f.always["flaky"] = Transient("flaky", errors.New("timeout"))

	c := newTestCoordinator(store, newMemSink(), f, Options{
		Workers:     1,
		MaxAttempts: 3,
		Clock:       clock,
		Backoff:     Backoff{Base: time.Second, Max: 30 * time.Second},
	})
	summary, err := c.Run(ctx, testSession{}, keys("flaky"))
	require.NoError(t, err)

	assert.Equal(t, 3, f.count("flaky"))
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, keys("flaky"), summary.FailedKeys)

	entries, _ := store.Load(ctx)
	assert.Equal(t, checkpoint.StatusFailed, entries["flaky"].Status)
	assert.Equal(t, 3, entries["flaky"].Attempts)

	// Retries wait base, then 2*base.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.waited)
}

func TestTransientThenSuccess(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemory()
	f := newScriptedFetcher()
	f.scripts["b"] = []error{Transient("b", errors.New("503")), errors.New("unclassified")}

	c := newTestCoordinator(store, newMemSink(), f, Options{Workers: 2, MaxAttempts: 3})
	summary, err := c.Run(ctx, testSession{}, keys("a", "b"))
	require.NoError(t, err)

	assert.Equal(t, 3, f.count("b"))
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 4, summary.Attempts)

	entries, _ := store.Load(ctx)
	assert.Equal(t, checkpoint.StatusSucceeded, entries["b"].Status)
	assert.Equal(t, 3, entries["b"].Attempts)
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemory()
	f := newScriptedFetcher()
	f.always["gone"] = Permanent("gone", errors.New("404"))

	c := newTestCoordinator(store, newMemSink(), f, Options{Workers: 2})
	summary, err := c.Run(ctx, testSession{}, keys("a", "gone", "c"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.count("gone"))
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	entries, _ := store.Load(ctx)
	assert.Equal(t, checkpoint.StatusFailed, entries["gone"].Status)
	assert.Equal(t, 1, entries["gone"].Attempts)
}

func TestResumeIdempotence(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemory()
	sink := newMemSink()

	first := newScriptedFetcher()
	first.always["b"] = Permanent("b", errors.New("404"))
	_, err := newTestCoordinator(store, sink, first, Options{}).Run(ctx, testSession{}, keys("a", "b", "c"))
	require.NoError(t, err)

	t.Run("Succeeded keys are never refetched", func(t *testing.T) {
		second := newScriptedFetcher()
		summary, err := newTestCoordinator(store, sink, second, Options{}).Run(ctx, testSession{}, keys("a", "b", "c"))
		require.NoError(t, err)

		assert.Equal(t, 0, second.count("a"))
		assert.Equal(t, 0, second.count("c"))
		assert.Equal(t, 1, second.count("b"))
		assert.Equal(t, 2, summary.Skipped)
		assert.Equal(t, 1, summary.Succeeded)
	})

	t.Run("Fully completed run fetches nothing", func(t *testing.T) {
		third := newScriptedFetcher()
		summary, err := newTestCoordinator(store, sink, third, Options{}).Run(ctx, testSession{}, keys("a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, 0, third.total())
		assert.Equal(t, 3, summary.Skipped)
	})
}

func TestSkipFailed(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemory()
	require.NoError(t, store.Record(ctx, "a", checkpoint.StatusSucceeded, 1))
	require.NoError(t, store.Record(ctx, "b", checkpoint.StatusFailed, 3))

	f := newScriptedFetcher()
	summary, err := newTestCoordinator(store, newMemSink(), f, Options{SkipFailed: true}).Run(ctx, testSession{}, keys("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, 0, f.count("b"))
	assert.Equal(t, 1, f.count("c"))
	assert.Equal(t, 2, summary.Skipped)
}

func TestCancellationDrainsInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := checkpoint.NewMemory()
	f := newScriptedFetcher()
	f.hook = func(key record.EntityKey) {
		if key == "a" {
			cancel()
		}
	}

	summary, err := newTestCoordinator(store, newMemSink(), f, Options{Workers: 1}).Run(ctx, testSession{}, keys("a", "b", "c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Pending)

	entries, _ := store.Load(context.Background())
	assert.Equal(t, checkpoint.StatusSucceeded, entries["a"].Status)
	assert.NotContains(t, entries, record.EntityKey("b"))

	t.Run("Resume fetches only the rest", func(t *testing.T) {
		next := newScriptedFetcher()
		summary, err := newTestCoordinator(store, newMemSink(), next, Options{}).Run(context.Background(), testSession{}, keys("a", "b", "c"))
		require.NoError(t, err)
		assert.Equal(t, 0, next.count("a"))
		assert.Equal(t, 2, summary.Succeeded)
		assert.Equal(t, 1, summary.Skipped)
	})
}

func TestAuthErrorStopsDispatch(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemory()
	f := newScriptedFetcher()
	f.always["b"] = &AuthError{Err: errors.New("session expired")}

	summary, err := newTestCoordinator(store, newMemSink(), f, Options{Workers: 1}).Run(ctx, testSession{}, keys("a", "b", "c"))
	require.Error(t, err)
	assert.True(t, IsAuth(err))

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, 0, f.count("c"))

	entries, _ := store.Load(ctx)
	assert.Equal(t, checkpoint.StatusSucceeded, entries["a"].Status)
	assert.Equal(t, checkpoint.StatusPending, entries["b"].Status)
}

func TestSinkFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	sink := newMemSink()
	sink.fail["a"] = 1
	store := &orderingStore{Memory: checkpoint.NewMemory(), sink: sink, t: t}
	f := newScriptedFetcher()

	summary, err := newTestCoordinator(store, sink, f, Options{}).Run(ctx, testSession{}, keys("a"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("a"))
	assert.Equal(t, 1, summary.Succeeded)
}

func TestDuplicateKeysAreFetchedOnce(t *testing.T) {
	f := newScriptedFetcher()
	summary, err := newTestCoordinator(checkpoint.NewMemory(), newMemSink(), f, Options{}).
		Run(context.Background(), testSession{}, keys("a", "a", "b", "a"))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, f.count("a"))
}

func TestNoKeyInFlightTwice(t *testing.T) {
	f := newScriptedFetcher()
	f.delay = time.Millisecond
	var ks []record.EntityKey
	for i := 0; i < 40; i++ {
		k := record.EntityKey(fmt.Sprintf("k%02d", i))
		ks = append(ks, k)
		if i%3 == 0 {
			f.scripts[k] = []error{Transient(k, errors.New("503")), Transient(k, errors.New("503"))}
		}
	}

	summary, err := newTestCoordinator(checkpoint.NewMemory(), newMemSink(), f, Options{Workers: 4, MaxAttempts: 3}).
		Run(context.Background(), testSession{}, ks)
	require.NoError(t, err)

	assert.Equal(t, 40, summary.Succeeded)
	assert.False(t, f.overlap)
	assert.LessOrEqual(t, f.peak, 4)
}

func TestFetcherPanicIsPermanent(t *testing.T) {
	f := newScriptedFetcher()
	f.hook = func(key record.EntityKey) {
		if key == "boom" {
			panic("nil map")
		}
	}

	summary, err := newTestCoordinator(checkpoint.NewMemory(), newMemSink(), f, Options{}).
		Run(context.Background(), testSession{}, keys("boom", "ok"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestUnreadableCheckpointStartsEmpty(t *testing.T) {
	f := newScriptedFetcher()
	summary, err := newTestCoordinator(brokenStore{}, newMemSink(), f, Options{}).
		Run(context.Background(), testSession{}, keys("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
}

type brokenStore struct{}

func (brokenStore) Load(ctx context.Context) (map[record.EntityKey]checkpoint.Entry, error) {
	return nil, errors.New("corrupt")
}

func (brokenStore) Record(ctx context.Context, key record.EntityKey, status checkpoint.Status, attempt int) error {
	return errors.New("read-only")
}

func (brokenStore) IsDone(ctx context.Context, key record.EntityKey) (bool, error) {
	return false, errors.New("corrupt")
}
