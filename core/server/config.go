package server

// Config holds configuration for the status HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API. Empty leaves it open.
	ApiKey string `mapstructure:"api_key" default:""`
	// CacheSeconds is how long run views are cached.
	CacheSeconds int `mapstructure:"cache_seconds" default:"5"`
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Protected reports whether requests need an API key.
func (c Config) Protected() bool {
	return c.ApiKey != ""
}
