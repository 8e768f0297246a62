package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"

	"listing-harvester/core/checkpoint"
	"listing-harvester/core/dataset"
	"listing-harvester/core/events"
	"listing-harvester/core/harvest"
	"listing-harvester/core/reconcile"
	"listing-harvester/core/record"
	"listing-harvester/core/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testSession struct{}

func (testSession) ID() string { return "session-1" }

type fakeSource struct {
	mu        gosync.Mutex
	keys      []record.EntityKey
	permanent map[record.EntityKey]bool
	authErr   error
	fetched   []record.EntityKey
}

func (f *fakeSource) AcquireSession(ctx context.Context, creds harvest.Credentials) (harvest.Session, error) {
	if f.authErr != nil {
		return nil, &harvest.AuthError{Err: f.authErr}
	}
	return testSession{}, nil
}

func (f *fakeSource) ListEntities(ctx context.Context, session harvest.Session, page int) ([]record.EntityKey, bool, error) {
	if page > 1 {
		return nil, false, nil
	}
	return f.keys, false, nil
}

func (f *fakeSource) FetchEntity(ctx context.Context, session harvest.Session, key record.EntityKey) (record.Fetched, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, key)
	f.mu.Unlock()

	if f.permanent[key] {
		return record.Fetched{}, harvest.Permanent(key, errors.New("404 not found"))
	}
	return companyWithJob(key), nil
}

func companyWithJob(key record.EntityKey) record.Fetched {
	slug := string(key)
	jobKey := slug + "/1"
	return record.Fetched{
		Record: record.RawRecord{Key: key, Fields: record.Fields{
			"id":       len(slug),
			"name":     "Company " + slug,
			"slug":     slug,
			"isHiring": true,
		}},
		Children: []record.RawRecord{{Key: record.EntityKey(jobKey), Fields: record.Fields{
			"job_key":       jobKey,
			"company_slug":  slug,
			"job_name":      "Engineer",
			"minExperience": "3+ years",
		}}},
	}
}

type recordingPublisher struct {
	mu     gosync.Mutex
	events []events.RunEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	service    *Service
	source     *fakeSource
	checkpoint *checkpoint.Memory
	records    *dataset.MemoryRecords
	artifacts  *dataset.Artifacts
	publisher  *recordingPublisher
	db         *gorm.DB
}

func syncConfig() sync.Config {
	return sync.Config{
		BatchSize:     1,
		Mode:          "upsert",
		ParentsKey:    "slug",
		ChildrenKey:   "job_key",
		UnifiedKey:    "job_key",
		ParentsTable:  "hiring_companies",
		ChildrenTable: "yc_jobs",
		UnifiedTable:  "yc_jobs_join",
		CreateTables:  true,
	}
}

func newFixture(t *testing.T, keys ...record.EntityKey) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dest.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	f := &fixture{
		source:     &fakeSource{keys: keys, permanent: map[record.EntityKey]bool{}},
		checkpoint: checkpoint.NewMemory(),
		records:    dataset.NewMemoryRecords(),
		artifacts:  dataset.NewArtifacts(dataset.NewDir(t.TempDir()), "runs", Layout(syncConfig())),
		publisher:  &recordingPublisher{},
		db:         db,
	}
	log := zap.NewNop()
	f.service = NewService(Deps{
		Source:     f.source,
		Checkpoint: f.checkpoint,
		Records:    f.records,
		Artifacts:  f.artifacts,
		Reconciler: reconcile.New(reconcile.DefaultOptions(), log, nil),
		SyncStore:  sync.NewGormStore(db),
		Publisher:  f.publisher,
	}, Options{
		Harvest: harvest.Config{Workers: 2, MaxAttempts: 1},
		Sync:    syncConfig(),
	}, log)
	return f
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table(table).Count(&n).Error)
	return n
}

func TestRunEndToEnd(t *testing.T) {
	f := newFixture(t, "alpha", "beta", "gamma")
	f.source.permanent["beta"] = true
	ctx := context.Background()

	report, err := f.service.Run(ctx, "", SyncOverrides{})
	require.NoError(t, err)
	require.True(t, dataset.ValidRunID(report.RunID))

	require.NotNil(t, report.Harvest)
	assert.Equal(t, 3, report.Harvest.Summary.Total)
	assert.Equal(t, 2, report.Harvest.Summary.Succeeded)
	assert.Equal(t, 1, report.Harvest.Summary.Failed)
	assert.Equal(t, []record.EntityKey{"beta"}, report.Harvest.Summary.FailedKeys)
	assert.Equal(t, 2, report.Harvest.Parents)
	assert.Equal(t, 2, report.Harvest.Children)

	require.NotNil(t, report.Reconcile)
	assert.Equal(t, 2, report.Reconcile.Records)
	assert.Equal(t, 2, report.Reconcile.Summary.Matched)

	require.NotNil(t, report.Sync)
	require.Len(t, report.Sync.Tables, 3)
	unified := report.Sync.Tables[2]
	assert.Equal(t, "yc_jobs_join", unified.Table)
	assert.Equal(t, sync.ModeUpsert, unified.Mode)
	assert.Equal(t, 2, unified.Loaded)
	assert.Equal(t, 2, unified.Batches)
	assert.Equal(t, 0, report.Sync.Failed)

	assert.EqualValues(t, 2, f.count(t, "hiring_companies"))
	assert.EqualValues(t, 2, f.count(t, "yc_jobs"))
	assert.EqualValues(t, 2, f.count(t, "yc_jobs_join"))

	var row map[string]any
	require.NoError(t, f.db.Table("yc_jobs_join").Where("job_key = ?", "alpha/1").Take(&row).Error)
	assert.Equal(t, "Company alpha", row["name"])
	assert.Equal(t, "5", row["company_id"])

	entries, err := f.checkpoint.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusFailed, entries["beta"].Status)
	assert.Equal(t, checkpoint.StatusSucceeded, entries["gamma"].Status)

	var stages []events.Stage
	for _, e := range f.publisher.events {
		assert.True(t, e.OK, e.Error)
		assert.Equal(t, report.RunID, e.RunID)
		stages = append(stages, e.Stage)
	}
	assert.Equal(t, []events.Stage{events.StageHarvest, events.StageReconcile, events.StageSync}, stages)

	var saved HarvestReport
	require.NoError(t, f.artifacts.LoadReport(ctx, report.RunID, ReportHarvest, &saved))
	assert.Equal(t, 2, saved.Summary.Succeeded)
}

func TestRunAgainSkipsSettledKeys(t *testing.T) {
	f := newFixture(t, "alpha", "beta")
	ctx := context.Background()

	require.NoError(t, f.records.Put(ctx, companyWithJob("alpha")))
	require.NoError(t, f.checkpoint.Record(ctx, "alpha", checkpoint.StatusSucceeded, 1))

	report, err := f.service.Harvest(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, []record.EntityKey{"beta"}, f.source.fetched)
	assert.Equal(t, 1, report.Summary.Skipped)
	assert.Equal(t, 1, report.Summary.Succeeded)
	assert.Equal(t, 2, report.Parents, "records of earlier runs are exported too")

	ds, err := f.artifacts.LoadDataset(ctx, report.RunID)
	require.NoError(t, err)
	assert.Len(t, ds.Children, 2)
}

func TestRunStopsOnAuthFailure(t *testing.T) {
	f := newFixture(t, "alpha")
	f.source.authErr = errors.New("401 unauthorized")

	report, err := f.service.Run(context.Background(), "", SyncOverrides{})
	require.Error(t, err)
	assert.True(t, harvest.IsAuth(err))
	assert.Nil(t, report.Reconcile)
	assert.Nil(t, report.Sync)
	assert.Empty(t, f.source.fetched)

	require.Len(t, f.publisher.events, 1)
	assert.False(t, f.publisher.events[0].OK)
	assert.Contains(t, f.publisher.events[0].Error, "401")
}

func TestHarvestWithoutKeys(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Harvest(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestSyncNeedsUnifiedRecords(t *testing.T) {
	f := newFixture(t, "alpha")
	ctx := context.Background()

	hr, err := f.service.Harvest(ctx, "")
	require.NoError(t, err)

	_, err = f.service.Sync(ctx, hr.RunID, SyncOverrides{})
	require.Error(t, err)
	assert.True(t, dataset.IsNotFound(err))
}

func TestSyncOverrides(t *testing.T) {
	f := newFixture(t, "alpha", "gamma")
	ctx := context.Background()

	hr, err := f.service.Harvest(ctx, "")
	require.NoError(t, err)
	_, err = f.service.Reconcile(ctx, hr.RunID)
	require.NoError(t, err)

	report, err := f.service.Sync(ctx, hr.RunID, SyncOverrides{Mode: "truncate", BatchSize: 10})
	require.NoError(t, err)
	for _, res := range report.Tables {
		assert.Equal(t, sync.ModeTruncate, res.Mode)
		assert.Equal(t, 1, res.Batches)
	}
	assert.Equal(t, 6, report.Loaded)

	_, err = f.service.Sync(ctx, hr.RunID, SyncOverrides{Mode: "merge"})
	assert.Error(t, err)
}

func TestSyncDisabled(t *testing.T) {
	f := newFixture(t, "alpha")
	f.service.deps.SyncStore = nil

	_, err := f.service.Sync(context.Background(), "20261016T100000Z-00000000", SyncOverrides{})
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestUnifiedRowsAddsKey(t *testing.T) {
	records := []record.UnifiedRecord{
		{Key: "alpha/1", Fields: record.Fields{"job_name": "Engineer"}},
		{Key: "alpha/2", Fields: record.Fields{"job_key": "alpha/2"}},
	}

	rows := unifiedRows(records, "job_key")
	assert.Equal(t, "alpha/1", rows[0]["job_key"])
	assert.Equal(t, "alpha/2", rows[1]["job_key"])
	_, touched := records[0].Fields["job_key"]
	assert.False(t, touched)
}
