package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"listing-harvester/core/record"

	"golang.org/x/sync/errgroup"
)

// Artifact names within a run.
const (
	ArtifactParents  = "companies"
	ArtifactChildren = "jobs"
	ArtifactUnified  = "unified"
	ArtifactManifest = "manifest"
)

// Dataset is the raw output of one harvest run.
type Dataset struct {
	RunID     string             `json:"run_id"`
	CreatedAt time.Time          `json:"created_at"`
	Parents   []record.RawRecord `json:"parents"`
	Children  []record.RawRecord `json:"children"`
}

// Manifest describes what a run produced.
type Manifest struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Parents   int       `json:"parents"`
	Children  int       `json:"children"`
}

// Layout controls how rows are written to CSV.
type Layout struct {
	// ParentKeyColumn receives the parent key in CSV rows.
	ParentKeyColumn string
	// ChildKeyColumn receives the child key in CSV rows.
	ChildKeyColumn string
	// ParentLead, ChildLead and UnifiedLead are the leading CSV columns.
	ParentLead  []string
	ChildLead   []string
	UnifiedLead []string
}

// Artifacts reads and writes run artifacts as <prefix>/<runID>/<name>.<ext>.
type Artifacts struct {
	store  ArtifactStore
	prefix string
	layout Layout
}

func NewArtifacts(store ArtifactStore, prefix string, layout Layout) *Artifacts {
	return &Artifacts{store: store, prefix: strings.Trim(prefix, "/"), layout: layout}
}

// Name returns the object name of an artifact of a run.
func (a *Artifacts) Name(runID, artifact, ext string) string {
	return joinName(a.prefix, runID, artifact+"."+ext)
}

// SaveDataset writes the parents and children of ds as JSON and CSV plus a manifest.
func (a *Artifacts) SaveDataset(ctx context.Context, ds *Dataset) error {
	if !ValidRunID(ds.RunID) {
		return fmt.Errorf("invalid run id %q", ds.RunID)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.putJSON(ctx, ds.RunID, ArtifactParents, ds.Parents)
	})
	g.Go(func() error {
		return a.putJSON(ctx, ds.RunID, ArtifactChildren, ds.Children)
	})
	g.Go(func() error {
		return a.putCSV(ctx, ds.RunID, ArtifactParents, RecordRows(ds.Parents, a.layout.ParentKeyColumn), a.layout.ParentLead)
	})
	g.Go(func() error {
		return a.putCSV(ctx, ds.RunID, ArtifactChildren, RecordRows(ds.Children, a.layout.ChildKeyColumn), a.layout.ChildLead)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	// The manifest goes last so its presence means the dataset is complete.
	return a.putJSON(ctx, ds.RunID, ArtifactManifest, Manifest{
		RunID:     ds.RunID,
		CreatedAt: ds.CreatedAt,
		Parents:   len(ds.Parents),
		Children:  len(ds.Children),
	})
}

// LoadDataset reads a dataset written by SaveDataset.
func (a *Artifacts) LoadDataset(ctx context.Context, runID string) (*Dataset, error) {
	manifest, err := a.Manifest(ctx, runID)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{RunID: runID, CreatedAt: manifest.CreatedAt}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.getJSON(ctx, runID, ArtifactParents, &ds.Parents)
	})
	g.Go(func() error {
		return a.getJSON(ctx, runID, ArtifactChildren, &ds.Children)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Manifest reads the manifest of a run.
func (a *Artifacts) Manifest(ctx context.Context, runID string) (Manifest, error) {
	var m Manifest
	if !ValidRunID(runID) {
		return m, fmt.Errorf("invalid run id %q", runID)
	}
	if err := a.getJSON(ctx, runID, ArtifactManifest, &m); err != nil {
		return m, err
	}
	return m, nil
}

// SaveUnified writes reconciled records as JSON and CSV.
func (a *Artifacts) SaveUnified(ctx context.Context, runID string, records []record.UnifiedRecord) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.putJSON(ctx, runID, ArtifactUnified, records)
	})
	g.Go(func() error {
		return a.putCSV(ctx, runID, ArtifactUnified, UnifiedRows(records), a.layout.UnifiedLead)
	})
	return g.Wait()
}

// LoadUnified reads records written by SaveUnified.
func (a *Artifacts) LoadUnified(ctx context.Context, runID string) ([]record.UnifiedRecord, error) {
	var out []record.UnifiedRecord
	if err := a.getJSON(ctx, runID, ArtifactUnified, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveReport stores a stage report (summary, sync result) for a run.
func (a *Artifacts) SaveReport(ctx context.Context, runID, name string, v any) error {
	return a.putJSON(ctx, runID, name, v)
}

// LoadReport reads a stage report into v.
func (a *Artifacts) LoadReport(ctx context.Context, runID, name string, v any) error {
	return a.getJSON(ctx, runID, name, v)
}

// Runs returns the ids of runs with a manifest, newest first.
func (a *Artifacts) Runs(ctx context.Context) ([]string, error) {
	prefix := a.prefix
	if prefix != "" {
		prefix += "/"
	}
	names, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	suffix := "/" + ArtifactManifest + ".json"
	var runs []string
	for _, n := range names {
		if !strings.HasSuffix(n, suffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(n, prefix), suffix)
		if ValidRunID(id) {
			runs = append(runs, id)
		}
	}
	// Run ids sort chronologically.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

// Latest returns the newest run id.
func (a *Artifacts) Latest(ctx context.Context) (string, error) {
	runs, err := a.Runs(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("no runs: %w", ErrNotFound)
	}
	return runs[0], nil
}

// Files lists the artifact names stored for a run.
func (a *Artifacts) Files(ctx context.Context, runID string) ([]string, error) {
	return a.store.List(ctx, joinName(a.prefix, runID)+"/")
}

// DeleteRun removes every artifact of a run.
func (a *Artifacts) DeleteRun(ctx context.Context, runID string) error {
	if !ValidRunID(runID) {
		return fmt.Errorf("invalid run id %q", runID)
	}
	files, err := a.Files(ctx, runID)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return a.store.Delete(ctx, files)
}

// Prune deletes all but the newest keep runs and returns the deleted ids.
func (a *Artifacts) Prune(ctx context.Context, keep int) ([]string, error) {
	runs, err := a.Runs(ctx)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(runs) <= keep {
		return nil, nil
	}
	var deleted []string
	for _, id := range runs[keep:] {
		if err := a.DeleteRun(ctx, id); err != nil {
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

func (a *Artifacts) putJSON(ctx context.Context, runID, name string, v any) error {
	data, err := encodeJSONBytes(v)
	if err != nil {
		return err
	}
	return a.store.Put(ctx, a.Name(runID, name, "json"), data, "application/json")
}

func (a *Artifacts) putCSV(ctx context.Context, runID, name string, rows []record.Fields, lead []string) error {
	data, err := encodeCSVBytes(rows, lead)
	if err != nil {
		return err
	}
	return a.store.Put(ctx, a.Name(runID, name, "csv"), data, "text/csv")
}

func (a *Artifacts) getJSON(ctx context.Context, runID, name string, v any) error {
	data, err := a.store.Get(ctx, a.Name(runID, name, "json"))
	if err != nil {
		return err
	}
	if err := DecodeJSON(bytes.NewReader(data), v); err != nil {
		return fmt.Errorf("artifact %s/%s: %w", runID, name, err)
	}
	return nil
}

// IsNotFound reports whether err means a missing record, artifact or run.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
