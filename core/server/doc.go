// Package server holds the status HTTP server configuration.
//
// The Config struct defines the HTTP port, the optional API key and the
// cache lifetime of run views. It is embedded by core/config and read by the
// serve command.
package server
