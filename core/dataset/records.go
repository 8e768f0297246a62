package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"listing-harvester/core/record"
)

// ErrNotFound is returned when a record or artifact does not exist.
var ErrNotFound = errors.New("not found")

// RecordStore holds the latest fetched record per key. Put replaces the whole
// record for a key.
type RecordStore interface {
	Put(ctx context.Context, fetched record.Fetched) error
	Get(ctx context.Context, key record.EntityKey) (record.Fetched, error)
	Keys(ctx context.Context) ([]record.EntityKey, error)
}

// MemoryRecords is an in-process RecordStore.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[record.EntityKey]record.Fetched
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[record.EntityKey]record.Fetched)}
}

func (m *MemoryRecords) Put(ctx context.Context, fetched record.Fetched) error {
	if fetched.Record.Key == "" {
		return errors.New("record has no key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[fetched.Record.Key] = cloneFetched(fetched)
	return nil
}

func (m *MemoryRecords) Get(ctx context.Context, key record.EntityKey) (record.Fetched, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.records[key]
	if !ok {
		return record.Fetched{}, fmt.Errorf("record %s: %w", key, ErrNotFound)
	}
	return cloneFetched(f), nil
}

func (m *MemoryRecords) Keys(ctx context.Context) ([]record.EntityKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]record.EntityKey, 0, len(m.records))
	for k := range m.records {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DirRecords stores one JSON file per key. Files are replaced atomically so a
// crash never leaves a partial record.
type DirRecords struct {
	dir string
}

func NewDirRecords(dir string) *DirRecords {
	return &DirRecords{dir: dir}
}

func (d *DirRecords) path(key record.EntityKey) string {
	return filepath.Join(d.dir, url.PathEscape(string(key))+".json")
}

func (d *DirRecords) Put(ctx context.Context, fetched record.Fetched) error {
	if fetched.Record.Key == "" {
		return errors.New("record has no key")
	}
	data, err := json.Marshal(fetched)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", fetched.Record.Key, err)
	}
	return writeFileAtomic(d.path(fetched.Record.Key), data)
}

func (d *DirRecords) Get(ctx context.Context, key record.EntityKey) (record.Fetched, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return record.Fetched{}, fmt.Errorf("record %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return record.Fetched{}, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	var f record.Fetched
	if err := json.Unmarshal(data, &f); err != nil {
		return record.Fetched{}, fmt.Errorf("failed to parse record %s: %w", key, err)
	}
	return f, nil
}

func (d *DirRecords) Keys(ctx context.Context) ([]record.EntityKey, error) {
	entries, err := os.ReadDir(d.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}

	var out []record.EntityKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		out = append(out, record.EntityKey(key))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Collect builds a dataset from the stored records of keys, in key order.
// Keys without a record (failed or never fetched) are skipped.
func Collect(ctx context.Context, store RecordStore, runID string, keys []record.EntityKey) (*Dataset, error) {
	ds := &Dataset{RunID: runID}
	for _, k := range keys {
		f, err := store.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ds.Parents = append(ds.Parents, f.Record)
		ds.Children = append(ds.Children, f.Children...)
	}
	return ds, nil
}

func cloneFetched(f record.Fetched) record.Fetched {
	out := record.Fetched{Record: f.Record.Clone()}
	if f.Children != nil {
		out.Children = make([]record.RawRecord, len(f.Children))
		for i, c := range f.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}
