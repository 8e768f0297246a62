package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"listing-harvester/core/record"
)

// fileDocument is the on-disk layout of a File store.
type fileDocument struct {
	Version   int                        `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Entries   map[record.EntityKey]Entry `json:"entries"`
}

// File persists entries as a single JSON document. Every Record rewrites the
// document through a temp file and rename, so readers see either the old or
// the new version.
type File struct {
	path string

	mu      sync.Mutex
	loaded  bool
	entries map[record.EntityKey]Entry
	now     func() time.Time
}

// NewFile creates a file-backed store at path. The file is created on first write.
func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

// Path returns the document location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Load(ctx context.Context) (map[record.EntityKey]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make(map[record.EntityKey]Entry, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out, nil
}

func (f *File) Record(ctx context.Context, key record.EntityKey, status Status, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureLoaded(); err != nil {
		// A corrupt document is replaced rather than blocking progress.
		f.entries = make(map[record.EntityKey]Entry)
		f.loaded = true
	}

	prev, had := f.entries[key]
	f.entries[key] = Entry{Key: key, Status: status, Attempts: attempt, LastAttempt: f.now()}
	if err := f.flush(); err != nil {
		if had {
			f.entries[key] = prev
		} else {
			delete(f.entries, key)
		}
		return err
	}
	return nil
}

func (f *File) IsDone(ctx context.Context, key record.EntityKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureLoaded(); err != nil {
		return false, err
	}
	e, ok := f.entries[key]
	return ok && e.Status == StatusSucceeded, nil
}

// Reset removes the document.
func (f *File) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = make(map[record.EntityKey]Entry)
	f.loaded = true
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove checkpoint %s: %w", f.path, err)
	}
	return nil
}

func (f *File) ensureLoaded() error {
	if f.loaded {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.entries = make(map[record.EntityKey]Entry)
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", f.path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse checkpoint %s: %w", f.path, err)
	}

	entries := make(map[record.EntityKey]Entry, len(doc.Entries))
	for k, e := range doc.Entries {
		if !e.Status.Valid() {
			continue
		}
		e.Key = k
		entries[k] = e
	}
	f.entries = entries
	f.loaded = true
	return nil
}

func (f *File) flush() error {
	doc := fileDocument{Version: 1, UpdatedAt: f.now(), Entries: f.entries}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return writeFileAtomic(f.path, data)
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}
