// Package status serves read-only views of harvest progress and run output.
//
// # HTTP Endpoints
//
//   - GET /health : liveness.
//   - GET /checkpoint?status= : per-status counts and checkpoint entries.
//   - GET /runs : run manifests, newest first.
//   - GET /runs/:id : manifest, artifact names and stage reports ('latest' accepted).
//   - GET /tables : columns and row counts of the destination tables.
//   - GET /metrics : Prometheus metrics, when a registry is configured.
//
// Run views are cached for Options.CacheTTL; concurrent misses share one build.
package status
