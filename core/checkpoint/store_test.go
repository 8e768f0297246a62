package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"listing-harvester/core/record"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeHash is an in-memory HashClient.
type fakeHash struct {
	mu   sync.Mutex
	data map[string]map[string]string
	err  error
}

func newFakeHash() *fakeHash {
	return &fakeHash{data: make(map[string]map[string]string)}
}

func (f *fakeHash) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	h, ok := f.data[key]
	if !ok {
		h = make(map[string]string)
		f.data[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHash) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeHash) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	out := make(map[string]string, len(f.data[key]))
	for k, v := range f.data[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeHash) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func setupGorm(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "checkpoint.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

// storeCases runs the shared contract against every backend.
func storeCases(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			return NewFile(filepath.Join(t.TempDir(), "nested", "checkpoint.json"))
		},
		"database": func(t *testing.T) Store {
			s := NewGorm(setupGorm(t), "", "companies")
			require.NoError(t, s.Migrate(context.Background()))
			return s
		},
		"redis": func(t *testing.T) Store { return NewRedis(newFakeHash(), "test", "companies") },
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, build := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			store := build(t)

			t.Run("Empty load", func(t *testing.T) {
				entries, err := store.Load(ctx)
				assert.NoError(t, err)
				assert.Empty(t, entries)
			})

			t.Run("Record and overwrite", func(t *testing.T) {
				require.NoError(t, store.Record(ctx, "acme", StatusPending, 1))
				require.NoError(t, store.Record(ctx, "acme", StatusPending, 2))
				require.NoError(t, store.Record(ctx, "beta", StatusFailed, 1))

				entries, err := store.Load(ctx)
				require.NoError(t, err)
				assert.Len(t, entries, 2)
				assert.Equal(t, StatusPending, entries["acme"].Status)
				assert.Equal(t, 2, entries["acme"].Attempts)
				assert.Equal(t, record.EntityKey("acme"), entries["acme"].Key)
				assert.False(t, entries["acme"].LastAttempt.IsZero())
				assert.Equal(t, StatusFailed, entries["beta"].Status)
			})

			t.Run("IsDone", func(t *testing.T) {
				done, err := store.IsDone(ctx, "acme")
				assert.NoError(t, err)
				assert.False(t, done)

				require.NoError(t, store.Record(ctx, "acme", StatusSucceeded, 3))
				done, err = store.IsDone(ctx, "acme")
				assert.NoError(t, err)
				assert.True(t, done)

				done, err = store.IsDone(ctx, "unknown")
				assert.NoError(t, err)
				assert.False(t, done)
			})

			t.Run("Idempotent record", func(t *testing.T) {
				require.NoError(t, store.Record(ctx, "acme", StatusSucceeded, 3))
				entries, err := store.Load(ctx)
				require.NoError(t, err)
				assert.Equal(t, StatusSucceeded, entries["acme"].Status)
				assert.Equal(t, 3, entries["acme"].Attempts)
			})

			t.Run("Reset", func(t *testing.T) {
				r, ok := store.(Resetter)
				require.True(t, ok)
				require.NoError(t, r.Reset(ctx))
				entries, err := store.Load(ctx)
				assert.NoError(t, err)
				assert.Empty(t, entries)
			})
		})
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	first := NewFile(path)
	require.NoError(t, first.Record(ctx, "acme", StatusSucceeded, 1))
	require.NoError(t, first.Record(ctx, "beta", StatusPending, 2))

	second := NewFile(path)
	entries, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, entries["acme"].Status)
	assert.Equal(t, 2, entries["beta"].Attempts)

	// No temp files are left behind.
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileCorruptDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewFile(path)
	_, err := store.Load(ctx)
	assert.Error(t, err)

	t.Run("LoadOrEmpty degrades", func(t *testing.T) {
		entries := LoadOrEmpty(ctx, NewFile(path), zap.NewNop())
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("Record replaces corrupt document", func(t *testing.T) {
		require.NoError(t, store.Record(ctx, "acme", StatusSucceeded, 1))
		entries, err := NewFile(path).Load(ctx)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestFileSkipsUnknownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	doc := `{"version":1,"entries":{"acme":{"status":"weird","attempts":1},"beta":{"status":"succeeded","attempts":1}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	entries, err := NewFile(path).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, record.EntityKey("beta"), entries["beta"].Key)
}

func TestGormScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := setupGorm(t)

	a := NewGorm(db, "checkpoints", "companies")
	b := NewGorm(db, "checkpoints", "jobs")
	require.NoError(t, a.Migrate(ctx))

	require.NoError(t, a.Record(ctx, "acme", StatusSucceeded, 1))
	require.NoError(t, b.Record(ctx, "acme", StatusPending, 1))

	ea, err := a.Load(ctx)
	require.NoError(t, err)
	eb, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, ea["acme"].Status)
	assert.Equal(t, StatusPending, eb["acme"].Status)

	require.NoError(t, b.Reset(ctx))
	ea, err = a.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, ea, 1)
}

func TestRedisErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeHash()
	client.err = assert.AnError
	store := NewRedis(client, "", "companies")

	assert.Equal(t, "harvest:checkpoint:companies", store.Hash())

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorIs(t, store.Record(ctx, "acme", StatusPending, 1), assert.AnError)
	_, err = store.IsDone(ctx, "acme")
	assert.ErrorIs(t, err, assert.AnError)

	entries := LoadOrEmpty(ctx, store, zap.NewNop())
	assert.Empty(t, entries)
}

func TestCounts(t *testing.T) {
	now := time.Now()
	counts := Counts(map[record.EntityKey]Entry{
		"a": {Status: StatusSucceeded, LastAttempt: now},
		"b": {Status: StatusSucceeded, LastAttempt: now},
		"c": {Status: StatusFailed, LastAttempt: now},
	})
	assert.Equal(t, 2, counts[StatusSucceeded])
	assert.Equal(t, 1, counts[StatusFailed])
	assert.Equal(t, 0, counts[StatusPending])
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Backend: BackendMemory}, Deps{})
	assert.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Config{Backend: BackendFile, Path: "x.json"}, Deps{})
	assert.NoError(t, err)
	assert.IsType(t, &File{}, s)

	_, err = Open(Config{Backend: BackendDatabase}, Deps{})
	assert.Error(t, err)

	_, err = Open(Config{Backend: BackendRedis}, Deps{})
	assert.Error(t, err)

	_, err = Open(Config{Backend: "etcd"}, Deps{})
	assert.Error(t, err)
}
