// Package dataset stores harvested records and the per-run artifacts that
// stages hand to each other.
//
// Records are kept per key in a RecordStore as they are fetched. A run
// snapshot (Dataset) and the reconciled output are written under an explicit
// run id, as JSON for the next stage and CSV for people.
package dataset
