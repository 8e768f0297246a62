package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/dataset"
	"listing-harvester/core/events"
	"listing-harvester/core/harvest"
	"listing-harvester/core/metrics"
	"listing-harvester/core/reconcile"
	"listing-harvester/core/record"
	"listing-harvester/core/sync"

	"go.uber.org/zap"
)

// Report names stored next to the run artifacts.
const (
	ReportHarvest   = "harvest_report"
	ReportReconcile = "reconcile_report"
	ReportSync      = "sync_report"
)

var (
	// ErrNoKeys is returned when enumeration finds nothing to harvest.
	ErrNoKeys = errors.New("no entities to harvest")
	// ErrSyncDisabled is returned when no destination store is configured.
	ErrSyncDisabled = errors.New("sync stage has no destination store")
)

// Deps carries the collaborators of a Service. SyncStore, Publisher and
// Metrics are optional.
type Deps struct {
	Source     harvest.Source
	Checkpoint checkpoint.Store
	Records    dataset.RecordStore
	Artifacts  *dataset.Artifacts
	Reconciler *reconcile.Reconciler
	SyncStore  sync.Store
	Publisher  events.Publisher
	Metrics    *metrics.Metrics
}

// Options configures the stages.
type Options struct {
	Harvest     harvest.Config
	Sync        sync.Config
	Credentials harvest.Credentials
	// Clock defaults to the wall clock.
	Clock harvest.Clock
}

// SyncOverrides replace the configured mode or batch size for one call.
type SyncOverrides struct {
	Mode      string
	BatchSize int
}

// HarvestReport is the outcome of the harvest stage.
type HarvestReport struct {
	RunID    string          `json:"run_id"`
	Session  string          `json:"session"`
	Keys     int             `json:"keys"`
	Parents  int             `json:"parents"`
	Children int             `json:"children"`
	Summary  harvest.Summary `json:"summary"`
}

// ReconcileReport is the outcome of the reconcile stage.
type ReconcileReport struct {
	RunID   string            `json:"run_id"`
	Records int               `json:"records"`
	Summary reconcile.Summary `json:"summary"`
}

// SyncReport is the outcome of the sync stage, one result per table.
type SyncReport struct {
	RunID  string        `json:"run_id"`
	Tables []sync.Result `json:"tables"`
	Loaded int           `json:"loaded"`
	Failed int           `json:"failed"`
}

// RunReport collects the stages of a full run. Stages that did not run are nil.
type RunReport struct {
	RunID     string           `json:"run_id"`
	Harvest   *HarvestReport   `json:"harvest,omitempty"`
	Reconcile *ReconcileReport `json:"reconcile,omitempty"`
	Sync      *SyncReport      `json:"sync,omitempty"`
}

// Service runs the harvest, reconcile and sync stages against run artifacts.
type Service struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewService creates a pipeline service.
func NewService(deps Deps, opts Options, logger *zap.Logger) *Service {
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = harvest.SystemClock{}
	}
	return &Service{deps: deps, opts: opts, logger: logger.Named("pipeline")}
}

// NewRunID returns a fresh run id from the service clock.
func (s *Service) NewRunID() string {
	return dataset.NewRunID(s.opts.Clock.Now())
}

// Harvest acquires a session, enumerates the source and fetches every key
// not already settled in the checkpoint. The dataset of all stored records
// for the enumerated keys is written under runID, also when the run was
// interrupted. An empty runID gets a fresh one.
func (s *Service) Harvest(ctx context.Context, runID string) (*HarvestReport, error) {
	if runID == "" {
		runID = s.NewRunID()
	}
	report := &HarvestReport{RunID: runID}
	log := s.logger.With(zap.String("run_id", runID))

	err := s.harvest(ctx, log, report)
	s.publish(ctx, runID, events.StageHarvest, report, err)
	return report, err
}

func (s *Service) harvest(ctx context.Context, log *zap.Logger, report *HarvestReport) error {
	session, err := s.deps.Source.AcquireSession(ctx, s.opts.Credentials)
	if err != nil {
		return err
	}
	report.Session = session.ID()

	keys, err := harvest.Enumerate(ctx, s.deps.Source, session, s.opts.Harvest.MaxKeys)
	if err != nil {
		return err
	}
	report.Keys = len(keys)
	if len(keys) == 0 {
		return ErrNoKeys
	}
	log.Info("Entities enumerated", zap.Int("keys", len(keys)))

	hopts := s.opts.Harvest.Options()
	hopts.Clock = s.opts.Clock
	coordinator := harvest.NewCoordinator(s.deps.Checkpoint, s.deps.Records, s.deps.Source, hopts, s.logger, s.deps.Metrics)

	summary, runErr := coordinator.Run(ctx, session, keys)
	report.Summary = summary

	// Export what has been stored so far even when the run stopped early.
	exportCtx := context.WithoutCancel(ctx)
	ds, err := dataset.Collect(exportCtx, s.deps.Records, report.RunID, keys)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("collecting records: %w", err))
	}
	ds.CreatedAt = s.opts.Clock.Now()
	report.Parents = len(ds.Parents)
	report.Children = len(ds.Children)

	if err := s.deps.Artifacts.SaveDataset(exportCtx, ds); err != nil {
		return errors.Join(runErr, fmt.Errorf("saving dataset: %w", err))
	}
	if err := s.deps.Artifacts.SaveReport(exportCtx, report.RunID, ReportHarvest, report); err != nil {
		log.Warn("Failed to save harvest report", zap.Error(err))
	}

	log.Info("Harvest finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("pending", summary.Pending),
		zap.Int("parents", report.Parents),
		zap.Int("children", report.Children))
	return runErr
}

// Reconcile joins the children of a run to its parents and stores the
// unified records.
func (s *Service) Reconcile(ctx context.Context, runID string) (*ReconcileReport, error) {
	report := &ReconcileReport{RunID: runID}
	err := s.reconcile(ctx, report)
	s.publish(ctx, runID, events.StageReconcile, report, err)
	return report, err
}

func (s *Service) reconcile(ctx context.Context, report *ReconcileReport) error {
	ds, err := s.deps.Artifacts.LoadDataset(ctx, report.RunID)
	if err != nil {
		return err
	}

	unified, summary := s.deps.Reconciler.Reconcile(ds.Parents, ds.Children)
	report.Records = len(unified)
	report.Summary = summary

	if err := s.deps.Artifacts.SaveUnified(ctx, report.RunID, unified); err != nil {
		return fmt.Errorf("saving unified records: %w", err)
	}
	if err := s.deps.Artifacts.SaveReport(ctx, report.RunID, ReportReconcile, report); err != nil {
		s.logger.Warn("Failed to save reconcile report", zap.String("run_id", report.RunID), zap.Error(err))
	}
	return nil
}

// table is one destination of the sync stage.
type table struct {
	name string
	key  string
	rows []record.Fields
}

// Sync loads the parents, children and unified records of a run into their
// tables. A table that cannot start does not stop the others; the errors are
// joined.
func (s *Service) Sync(ctx context.Context, runID string, over SyncOverrides) (*SyncReport, error) {
	report := &SyncReport{RunID: runID}
	err := s.sync(ctx, report, over)
	s.publish(ctx, runID, events.StageSync, report, err)
	return report, err
}

func (s *Service) sync(ctx context.Context, report *SyncReport, over SyncOverrides) error {
	if s.deps.SyncStore == nil {
		return ErrSyncDisabled
	}

	cfg := s.opts.Sync
	if over.Mode != "" {
		cfg.Mode = over.Mode
	}
	if over.BatchSize > 0 {
		cfg.BatchSize = over.BatchSize
	}
	mode, err := sync.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	tables, err := s.tables(ctx, report.RunID, cfg)
	if err != nil {
		return err
	}

	var errs []error
	for _, t := range tables {
		engine := sync.NewEngine(s.deps.SyncStore, sync.Options{
			BatchSize: cfg.BatchSize,
			Mode:      mode,
			KeyColumn: t.key,
			Prepare:   cfg.CreateTables,
		}, s.logger, s.deps.Metrics)

		res, err := engine.Sync(ctx, t.name, t.rows)
		report.Tables = append(report.Tables, res)
		report.Loaded += res.Loaded
		report.Failed += res.Failed
		if err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.name, err))
			if ctx.Err() != nil {
				break
			}
		}
	}

	if err := s.deps.Artifacts.SaveReport(context.WithoutCancel(ctx), report.RunID, ReportSync, report); err != nil {
		s.logger.Warn("Failed to save sync report", zap.String("run_id", report.RunID), zap.Error(err))
	}
	return errors.Join(errs...)
}

func (s *Service) tables(ctx context.Context, runID string, cfg sync.Config) ([]table, error) {
	ds, err := s.deps.Artifacts.LoadDataset(ctx, runID)
	if err != nil {
		return nil, err
	}
	unified, err := s.deps.Artifacts.LoadUnified(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run %s has no unified records, reconcile it first: %w", runID, err)
	}

	return []table{
		{name: cfg.ParentsTable, key: cfg.ParentsKey, rows: dataset.RecordRows(ds.Parents, cfg.ParentsKey)},
		{name: cfg.ChildrenTable, key: cfg.ChildrenKey, rows: dataset.RecordRows(ds.Children, cfg.ChildrenKey)},
		{name: cfg.UnifiedTable, key: cfg.UnifiedKey, rows: unifiedRows(unified, cfg.UnifiedKey)},
	}, nil
}

// unifiedRows copies the merged fields, adding the child key under keyColumn
// when the merge did not carry it.
func unifiedRows(records []record.UnifiedRecord, keyColumn string) []record.Fields {
	rows := dataset.UnifiedRows(records)
	for i, r := range records {
		if keyColumn == "" {
			break
		}
		if _, ok := rows[i][keyColumn]; !ok {
			row := rows[i].Clone()
			row[keyColumn] = string(r.Key)
			rows[i] = row
		}
	}
	return rows
}

// Run executes harvest, reconcile and sync under one run id. Reconcile and
// sync are skipped when the harvest was interrupted or could not
// authenticate; failed keys alone do not stop the run.
func (s *Service) Run(ctx context.Context, runID string, over SyncOverrides) (*RunReport, error) {
	if runID == "" {
		runID = s.NewRunID()
	}
	report := &RunReport{RunID: runID}
	started := time.Now()

	hr, err := s.Harvest(ctx, runID)
	report.Harvest = hr
	if err != nil {
		return report, fmt.Errorf("harvest: %w", err)
	}

	rr, err := s.Reconcile(ctx, runID)
	report.Reconcile = rr
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	if s.deps.SyncStore == nil {
		s.logger.Warn("No destination database, skipping sync", zap.String("run_id", runID))
		return report, nil
	}
	sr, err := s.Sync(ctx, runID, over)
	report.Sync = sr
	if err != nil {
		return report, fmt.Errorf("sync: %w", err)
	}

	s.logger.Info("Run complete",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(started)))
	return report, nil
}

func (s *Service) publish(ctx context.Context, runID string, stage events.Stage, summary any, err error) {
	event := events.RunEvent{
		RunID:      runID,
		Stage:      stage,
		OK:         err == nil,
		Summary:    summary,
		FinishedAt: s.opts.Clock.Now(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	if perr := s.deps.Publisher.Publish(context.WithoutCancel(ctx), event); perr != nil {
		s.logger.Warn("Run event not published",
			zap.String("run_id", runID),
			zap.String("stage", string(stage)),
			zap.Error(perr))
	}
}
