package redis

// Config holds configuration for the redis connection.
type Config struct {
	// Addr is host:port of the redis server. Empty disables redis.
	Addr string `mapstructure:"addr" default:""`
	// Password is the redis password.
	Password string `mapstructure:"password" default:""`
	// DB is the redis database number.
	DB int `mapstructure:"db" default:"0"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `mapstructure:"pool_size" default:"10"`
	// Prefix namespaces every key written by the harvester.
	Prefix string `mapstructure:"prefix" default:"harvest"`
	// TimeoutSeconds bounds the initial PING.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"5"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool {
	return c.Addr != ""
}
