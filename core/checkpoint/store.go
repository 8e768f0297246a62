package checkpoint

import (
	"context"
	"time"

	"listing-harvester/core/record"

	"go.uber.org/zap"
)

// Status is the persisted harvest state of one entity key.
type Status string

const (
	// StatusPending marks a key that has not settled yet (never tried, or retry scheduled).
	StatusPending Status = "pending"
	// StatusSucceeded marks a key whose record has been stored. It is never fetched again.
	StatusSucceeded Status = "succeeded"
	// StatusFailed marks a key that failed permanently or exhausted its attempts.
	StatusFailed Status = "failed-permanent"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

// Entry is the progress record of a single key.
type Entry struct {
	Key         record.EntityKey `json:"key"`
	Status      Status           `json:"status"`
	Attempts    int              `json:"attempts"`
	LastAttempt time.Time        `json:"last_attempt"`
}

// Store is a durable key -> Entry map.
//
// Record is an idempotent upsert and writes a single entry atomically, so a
// concurrent Load never observes a half-written entry.
type Store interface {
	// Load returns every known entry. A store that has never been written returns an empty map.
	Load(ctx context.Context) (map[record.EntityKey]Entry, error)
	// Record upserts the entry for key.
	Record(ctx context.Context, key record.EntityKey, status Status, attempt int) error
	// IsDone reports whether key has status succeeded.
	IsDone(ctx context.Context, key record.EntityKey) (bool, error)
}

// Resetter is implemented by stores that can drop all progress.
type Resetter interface {
	Reset(ctx context.Context) error
}

// LoadOrEmpty loads the store and degrades to an empty state on failure.
// Resuming is best-effort; a broken checkpoint only costs redundant fetches.
func LoadOrEmpty(ctx context.Context, store Store, logger *zap.Logger) map[record.EntityKey]Entry {
	entries, err := store.Load(ctx)
	if err != nil {
		logger.Warn("Checkpoint unreadable, starting from empty state", zap.Error(err))
		return make(map[record.EntityKey]Entry)
	}
	if entries == nil {
		return make(map[record.EntityKey]Entry)
	}
	return entries
}

// Counts tallies entries per status.
func Counts(entries map[record.EntityKey]Entry) map[Status]int {
	out := map[Status]int{
		StatusPending:   0,
		StatusSucceeded: 0,
		StatusFailed:    0,
	}
	for _, e := range entries {
		out[e.Status]++
	}
	return out
}
