package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/config"
	"listing-harvester/core/database"
	"listing-harvester/core/dataset"
	"listing-harvester/core/events"
	"listing-harvester/core/logger"
	"listing-harvester/core/metrics"
	"listing-harvester/core/reconcile"
	"listing-harvester/core/redis"
	"listing-harvester/core/storage"
	"listing-harvester/core/sync"
	"listing-harvester/feature/pipeline"
	"listing-harvester/feature/source"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the shared clients of one command invocation.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	db    *gorm.DB
	dbErr error
	redis *goredis.Client

	checkpoint checkpoint.Store
	records    dataset.RecordStore
	artifacts  *dataset.Artifacts
	publisher  events.Publisher
}

// newApp loads configuration and opens the checkpoint and artifact stores.
// The destination database is connected lazily.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logg)

	a := &app{cfg: cfg, log: logg, metrics: metrics.New()}

	if cfg.Redis.Enabled() {
		client, err := redis.Connect(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
	}

	if err := a.openCheckpoint(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openArtifacts(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.publisher = events.New(cfg.Events, logg)
	return a, nil
}

func (a *app) openCheckpoint(ctx context.Context) error {
	deps := checkpoint.Deps{Redis: a.redis, RedisPrefix: a.cfg.Redis.Key("checkpoint")}
	if a.cfg.Checkpoint.Backend == checkpoint.BackendDatabase {
		db, err := a.database()
		if err != nil {
			return err
		}
		deps.DB = db
	}

	store, err := checkpoint.Open(a.cfg.Checkpoint, deps)
	if err != nil {
		return err
	}
	if g, ok := store.(*checkpoint.Gorm); ok {
		if err := g.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate checkpoint table: %w", err)
		}
	}
	a.checkpoint = store

	if a.cfg.Checkpoint.Backend == checkpoint.BackendMemory {
		a.records = dataset.NewMemoryRecords()
	} else {
		a.records = dataset.NewDirRecords(filepath.Join(a.cfg.Artifacts.Dir, "records"))
	}
	a.log.Debug("Checkpoint store opened", zap.String("backend", a.cfg.Checkpoint.Backend))
	return nil
}

func (a *app) openArtifacts(ctx context.Context) error {
	var store dataset.ArtifactStore
	switch a.cfg.Artifacts.Backend {
	case dataset.BackendDir, "":
		store = dataset.NewDir(a.cfg.Artifacts.Dir)
	case dataset.BackendBucket:
		client, err := storage.NewClient(a.cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage client: %w", err)
		}
		bucket := dataset.NewBucket(client, a.cfg.Storage.Bucket, a.cfg.Storage.Region)
		if err := bucket.EnsureBucket(ctx); err != nil {
			return err
		}
		store = bucket
	default:
		return fmt.Errorf("unknown artifacts backend %q", a.cfg.Artifacts.Backend)
	}
	a.artifacts = dataset.NewArtifacts(store, a.cfg.Artifacts.Prefix, pipeline.Layout(a.cfg.Sync))
	return nil
}

// database connects to the destination database once.
func (a *app) database() (*gorm.DB, error) {
	if a.db == nil && a.dbErr == nil {
		a.db, a.dbErr = database.Connect(a.cfg.Database)
		if a.dbErr != nil {
			a.dbErr = fmt.Errorf("failed to connect to database: %w", a.dbErr)
		}
	}
	return a.db, a.dbErr
}

// pipeline builds the stage service. withSync connects the destination database.
func (a *app) pipeline(withSync bool) (*pipeline.Service, error) {
	deps := pipeline.Deps{
		Source:     source.New(a.cfg.Source, a.log),
		Checkpoint: a.checkpoint,
		Records:    a.records,
		Artifacts:  a.artifacts,
		Reconciler: reconcile.New(reconcile.DefaultOptions(), a.log, a.metrics),
		Publisher:  a.publisher,
		Metrics:    a.metrics,
	}
	if withSync {
		db, err := a.database()
		if err != nil {
			return nil, err
		}
		deps.SyncStore = sync.NewGormStore(db)
	}
	return pipeline.NewService(deps, pipeline.Options{
		Harvest: a.cfg.Harvest,
		Sync:    a.cfg.Sync,
	}, a.log), nil
}

// runID resolves the --run flag; "latest" or empty picks the newest run.
func (a *app) runID(ctx context.Context, flag string) (string, error) {
	if flag != "" && flag != "latest" {
		if !dataset.ValidRunID(flag) {
			return "", fmt.Errorf("invalid run id %q", flag)
		}
		return flag, nil
	}
	return a.artifacts.Latest(ctx)
}

func (a *app) close() {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("Shutdown incomplete", zap.Error(err))
	}
	_ = a.log.Sync()
}
