package dataset

// Config holds configuration for run artifacts.
type Config struct {
	// Backend is where artifacts are written (dir, bucket).
	Backend string `mapstructure:"backend" default:"dir"`
	// Dir is the local root for the dir backend and the per-key record store.
	Dir string `mapstructure:"dir" default:"result"`
	// Prefix is prepended to every artifact name.
	Prefix string `mapstructure:"prefix" default:"runs"`
}

const (
	BackendDir    = "dir"
	BackendBucket = "bucket"
)
