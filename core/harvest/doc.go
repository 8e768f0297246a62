// Package harvest drives per-entity fetches to completion under partial failure.
//
// A Coordinator owns a single dispatch loop. It feeds a fixed Pool of workers,
// schedules transient retries with exponential backoff on an injectable Clock,
// and writes every state transition to a checkpoint.Store so a later run only
// fetches what is left.
package harvest
