package checkpoint

import (
	"context"
	"sync"
	"time"

	"listing-harvester/core/record"
)

// Memory keeps checkpoint entries in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[record.EntityKey]Entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[record.EntityKey]Entry),
		now:     time.Now,
	}
}

func (m *Memory) Load(ctx context.Context) (map[record.EntityKey]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[record.EntityKey]Entry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Record(ctx context.Context, key record.EntityKey, status Status, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = Entry{Key: key, Status: status, Attempts: attempt, LastAttempt: m.now()}
	return nil
}

func (m *Memory) IsDone(ctx context.Context, key record.EntityKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	return ok && e.Status == StatusSucceeded, nil
}

// Reset drops every entry.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[record.EntityKey]Entry)
	return nil
}
