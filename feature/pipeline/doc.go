// Package pipeline wires the harvest stages together.
//
// A run moves through three stages, each keyed by a run id:
//
//  1. Harvest: acquire a session, enumerate company slugs, fetch every key not
//     settled in the checkpoint and export the stored records as the run
//     dataset (companies and jobs, JSON and CSV).
//  2. Reconcile: join jobs to companies and write the unified records.
//  3. Sync: load companies, jobs and unified records into their tables.
//
// Every finished stage writes a report next to the run artifacts and
// publishes an events.RunEvent.
package pipeline
