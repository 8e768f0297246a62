package harvest

import "time"

// Config holds configuration for the fetch phase.
type Config struct {
	// Workers is the number of concurrent fetches.
	Workers int `mapstructure:"workers" default:"4"`
	// MaxAttempts bounds attempts per key within one run.
	MaxAttempts int `mapstructure:"max_attempts" default:"3"`
	// BackoffBaseMs is the wait after the first transient failure.
	BackoffBaseMs int `mapstructure:"backoff_base_ms" default:"1000"`
	// BackoffMaxMs caps the doubling backoff.
	BackoffMaxMs int `mapstructure:"backoff_max_ms" default:"30000"`
	// SkipFailed also skips keys an earlier run marked failed-permanent.
	SkipFailed bool `mapstructure:"skip_failed" default:"false"`
	// MaxKeys limits enumeration. Zero means no limit.
	MaxKeys int `mapstructure:"max_keys" default:"0"`
}

// Options converts the configuration into coordinator options.
func (c Config) Options() Options {
	return Options{
		Workers:     c.Workers,
		MaxAttempts: c.MaxAttempts,
		Backoff: Backoff{
			Base: time.Duration(c.BackoffBaseMs) * time.Millisecond,
			Max:  time.Duration(c.BackoffMaxMs) * time.Millisecond,
		},
		SkipFailed: c.SkipFailed,
	}
}
