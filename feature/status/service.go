package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/database"
	"listing-harvester/core/dataset"
	"listing-harvester/core/metrics"
	"listing-harvester/feature/pipeline"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoDatabase is returned by Tables when no destination database is connected.
var ErrNoDatabase = errors.New("no destination database")

// Deps carries the stores the status views read. DB and Metrics are optional.
type Deps struct {
	Checkpoint checkpoint.Store
	Artifacts  *dataset.Artifacts
	DB         *gorm.DB
	Metrics    *metrics.Metrics
}

// Options configures the views.
type Options struct {
	// Tables are inspected by the tables view.
	Tables []string
	// CacheTTL keeps run views; zero disables caching.
	CacheTTL time.Duration
}

// CheckpointView is the harvest progress.
type CheckpointView struct {
	Total   int                       `json:"total"`
	Counts  map[checkpoint.Status]int `json:"counts"`
	Entries []checkpoint.Entry        `json:"entries"`
}

// RunDetail is a run manifest with its artifacts and stage reports. Stages
// that have not run are nil.
type RunDetail struct {
	Manifest  dataset.Manifest          `json:"manifest"`
	Files     []string                  `json:"files"`
	Harvest   *pipeline.HarvestReport   `json:"harvest,omitempty"`
	Reconcile *pipeline.ReconcileReport `json:"reconcile,omitempty"`
	Sync      *pipeline.SyncReport      `json:"sync,omitempty"`
}

// Service builds the read-only status views.
type Service struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	cache  *viewCache
}

// NewService creates a status service.
func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	return &Service{deps: deps, opts: opts, logger: logger.Named("status"), cache: newViewCache(opts.CacheTTL)}
}

// Checkpoint returns progress counts and the entries, sorted by key. A
// non-empty status keeps only entries with that status.
func (s *Service) Checkpoint(ctx context.Context, status checkpoint.Status) (*CheckpointView, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	entries, err := s.deps.Checkpoint.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	view := &CheckpointView{Total: len(entries), Counts: checkpoint.Counts(entries), Entries: []checkpoint.Entry{}}
	for _, e := range entries {
		if status == "" || e.Status == status {
			view.Entries = append(view.Entries, e)
		}
	}
	sort.Slice(view.Entries, func(i, j int) bool { return view.Entries[i].Key < view.Entries[j].Key })
	return view, nil
}

// Runs returns the manifests of every run, newest first.
func (s *Service) Runs(ctx context.Context) ([]dataset.Manifest, error) {
	v, err := s.cache.getOrBuild("runs", func() (any, error) {
		ids, err := s.deps.Artifacts.Runs(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]dataset.Manifest, 0, len(ids))
		for _, id := range ids {
			m, err := s.deps.Artifacts.Manifest(ctx, id)
			if err != nil {
				s.logger.Warn("Run manifest unreadable", zap.String("run_id", id), zap.Error(err))
				continue
			}
			out = append(out, m)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]dataset.Manifest), nil
}

// Run returns the detail of one run. "latest" resolves to the newest run.
func (s *Service) Run(ctx context.Context, runID string) (*RunDetail, error) {
	if runID == "latest" {
		latest, err := s.deps.Artifacts.Latest(ctx)
		if err != nil {
			return nil, err
		}
		runID = latest
	}
	if !dataset.ValidRunID(runID) {
		return nil, fmt.Errorf("invalid run id %q", runID)
	}

	v, err := s.cache.getOrBuild("run/"+runID, func() (any, error) {
		return s.buildRun(ctx, runID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RunDetail), nil
}

func (s *Service) buildRun(ctx context.Context, runID string) (*RunDetail, error) {
	m, err := s.deps.Artifacts.Manifest(ctx, runID)
	if err != nil {
		return nil, err
	}
	files, err := s.deps.Artifacts.Files(ctx, runID)
	if err != nil {
		return nil, err
	}
	detail := &RunDetail{Manifest: m, Files: files}

	var harvest pipeline.HarvestReport
	if ok, err := s.report(ctx, runID, pipeline.ReportHarvest, &harvest); err != nil {
		return nil, err
	} else if ok {
		detail.Harvest = &harvest
	}
	var reconcile pipeline.ReconcileReport
	if ok, err := s.report(ctx, runID, pipeline.ReportReconcile, &reconcile); err != nil {
		return nil, err
	} else if ok {
		detail.Reconcile = &reconcile
	}
	var sync pipeline.SyncReport
	if ok, err := s.report(ctx, runID, pipeline.ReportSync, &sync); err != nil {
		return nil, err
	} else if ok {
		detail.Sync = &sync
	}
	return detail, nil
}

func (s *Service) report(ctx context.Context, runID, name string, v any) (bool, error) {
	err := s.deps.Artifacts.LoadReport(ctx, runID, name, v)
	if dataset.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Tables inspects the destination tables.
func (s *Service) Tables(ctx context.Context) ([]database.TableInfo, error) {
	if s.deps.DB == nil {
		return nil, ErrNoDatabase
	}
	out := make([]database.TableInfo, 0, len(s.opts.Tables))
	for _, t := range s.opts.Tables {
		info, err := database.InspectTable(ctx, s.deps.DB, t)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", t, err)
		}
		out = append(out, info)
	}
	return out, nil
}

// Invalidate drops cached run views.
func (s *Service) Invalidate() {
	s.cache.clear()
}
