// Package checkpoint persists per-key harvest progress so an interrupted run
// can resume without refetching keys that already succeeded.
//
// Backends: Memory (tests), File (JSON document replaced atomically), Gorm
// (one row per key, upserted) and Redis (one hash field per key).
package checkpoint
