// Package middleware contains HTTP middleware for the status API.
//
// # Components
//
//   - rayid: assigns a request id, stores it in the fiber locals and echoes
//     it in the X-Ray-ID response header.
//   - requestlog: logs each request through zap with its ray id and counts
//     it in the HTTP request metric.
//   - auth: API key validation for everything except the public paths.
//
// Register rayid first so the other middleware can log the id.
package middleware
