package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"listing-harvester/core/record"

	"github.com/redis/go-redis/v9"
)

// HashClient is the subset of go-redis used by the Redis store.
// *redis.Client satisfies it.
type HashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis keeps every entry of a scope in one hash. HSET of a single field is
// atomic, so readers see whole entries.
type Redis struct {
	client HashClient
	hash   string
	now    func() time.Time
}

// NewRedis creates a Redis-backed store using hash "<prefix>:<scope>".
func NewRedis(client HashClient, prefix, scope string) *Redis {
	if prefix == "" {
		prefix = "harvest:checkpoint"
	}
	return &Redis{client: client, hash: prefix + ":" + scope, now: time.Now}
}

// Hash returns the redis key holding the entries.
func (r *Redis) Hash() string {
	return r.hash
}

func (r *Redis) Load(ctx context.Context) (map[record.EntityKey]Entry, error) {
	raw, err := r.client.HGetAll(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.hash, err)
	}

	out := make(map[record.EntityKey]Entry, len(raw))
	for field, value := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(value), &e); err != nil || !e.Status.Valid() {
			continue
		}
		e.Key = record.EntityKey(field)
		out[e.Key] = e
	}
	return out, nil
}

func (r *Redis) Record(ctx context.Context, key record.EntityKey, status Status, attempt int) error {
	data, err := json.Marshal(Entry{Key: key, Status: status, Attempts: attempt, LastAttempt: r.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint for %s: %w", key, err)
	}
	if err := r.client.HSet(ctx, r.hash, string(key), string(data)).Err(); err != nil {
		return fmt.Errorf("failed to record checkpoint for %s: %w", key, err)
	}
	return nil
}

func (r *Redis) IsDone(ctx context.Context, key record.EntityKey) (bool, error) {
	value, err := r.client.HGet(ctx, r.hash, string(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint for %s: %w", key, err)
	}

	var e Entry
	if err := json.Unmarshal([]byte(value), &e); err != nil {
		return false, nil
	}
	return e.Status == StatusSucceeded, nil
}

// Reset deletes the hash.
func (r *Redis) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.hash).Err(); err != nil {
		return fmt.Errorf("failed to reset %s: %w", r.hash, err)
	}
	return nil
}
