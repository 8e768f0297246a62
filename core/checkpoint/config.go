package checkpoint

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Config holds configuration for the checkpoint store.
type Config struct {
	// Backend selects the store implementation (memory, file, database, redis).
	Backend string `mapstructure:"backend" default:"file"`
	// Path is the checkpoint document for the file backend.
	Path string `mapstructure:"path" default:"data/checkpoint.json"`
	// Table is the checkpoint table for the database backend.
	Table string `mapstructure:"table" default:"harvest_checkpoints"`
	// Scope separates independent harvests sharing one database or redis.
	Scope string `mapstructure:"scope" default:"companies"`
}

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// Deps carries the shared clients a backend may need.
type Deps struct {
	DB          *gorm.DB
	Redis       *redis.Client
	RedisPrefix string
}

// Open builds the store selected by cfg.Backend.
func Open(cfg Config, deps Deps) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile, "":
		return NewFile(cfg.Path), nil
	case BackendDatabase:
		if deps.DB == nil {
			return nil, fmt.Errorf("checkpoint backend %q requires a database connection", cfg.Backend)
		}
		return NewGorm(deps.DB, cfg.Table, cfg.Scope), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("checkpoint backend %q requires a redis connection", cfg.Backend)
		}
		return NewRedis(deps.Redis, deps.RedisPrefix, cfg.Scope), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
