// Package sync loads record sets into a relational table in fixed-size
// batches.
//
// Every batch runs inside its own transaction. A failing batch is rolled
// back, its records are reported failed and the next batch is still
// attempted, so a Result can mix loaded and failed records:
//
//	engine := sync.NewEngine(sync.NewGormStore(db), sync.Options{
//	    BatchSize: 100,
//	    Mode:      sync.ModeUpsert,
//	    KeyColumn: "job_key",
//	}, logger, nil)
//	result, err := engine.Sync(ctx, "yc_jobs", rows)
//
// The mode is a precondition of the run. In truncate mode the table is
// emptied first and a failure there aborts the run before any batch.
// In upsert mode every row must carry the key column.
package sync
