package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listing-harvester/core/record"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTable is the table used by the database-backed store.
const DefaultTable = "harvest_checkpoints"

// checkpointRow is one entry in the checkpoint table.
type checkpointRow struct {
	Scope         string    `gorm:"primaryKey;size:64"`
	EntityKey     string    `gorm:"primaryKey;size:255"`
	Status        string    `gorm:"size:32;not null"`
	Attempts      int       `gorm:"not null;default:0"`
	LastAttemptAt time.Time `gorm:"not null"`
}

// Gorm stores entries in a relational table, one row per (scope, key).
// A single-row upsert is atomic, which is all the contract needs.
type Gorm struct {
	db    *gorm.DB
	table string
	scope string
	now   func() time.Time
}

// NewGorm creates a database-backed store. Empty table falls back to DefaultTable.
func NewGorm(db *gorm.DB, table, scope string) *Gorm {
	if table == "" {
		table = DefaultTable
	}
	return &Gorm{db: db, table: table, scope: scope, now: time.Now}
}

// Migrate creates the checkpoint table if needed.
func (g *Gorm) Migrate(ctx context.Context) error {
	if g.db == nil {
		return errors.New("checkpoint database not configured")
	}
	if err := g.db.WithContext(ctx).Table(g.table).AutoMigrate(&checkpointRow{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", g.table, err)
	}
	return nil
}

func (g *Gorm) Load(ctx context.Context) (map[record.EntityKey]Entry, error) {
	if g.db == nil {
		return nil, errors.New("checkpoint database not configured")
	}

	var rows []checkpointRow
	err := g.db.WithContext(ctx).
		Table(g.table).
		Where("scope = ?", g.scope).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	out := make(map[record.EntityKey]Entry, len(rows))
	for _, row := range rows {
		status := Status(row.Status)
		if !status.Valid() {
			continue
		}
		key := record.EntityKey(row.EntityKey)
		out[key] = Entry{Key: key, Status: status, Attempts: row.Attempts, LastAttempt: row.LastAttemptAt}
	}
	return out, nil
}

func (g *Gorm) Record(ctx context.Context, key record.EntityKey, status Status, attempt int) error {
	if g.db == nil {
		return errors.New("checkpoint database not configured")
	}

	row := checkpointRow{
		Scope:         g.scope,
		EntityKey:     string(key),
		Status:        string(status),
		Attempts:      attempt,
		LastAttemptAt: g.now(),
	}
	err := g.db.WithContext(ctx).
		Table(g.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "entity_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "attempts", "last_attempt_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to record checkpoint for %s: %w", key, err)
	}
	return nil
}

func (g *Gorm) IsDone(ctx context.Context, key record.EntityKey) (bool, error) {
	if g.db == nil {
		return false, errors.New("checkpoint database not configured")
	}

	var count int64
	err := g.db.WithContext(ctx).
		Table(g.table).
		Where("scope = ? AND entity_key = ? AND status = ?", g.scope, string(key), string(StatusSucceeded)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check checkpoint for %s: %w", key, err)
	}
	return count > 0, nil
}

// Reset deletes every row of this scope.
func (g *Gorm) Reset(ctx context.Context) error {
	if g.db == nil {
		return errors.New("checkpoint database not configured")
	}
	err := g.db.WithContext(ctx).
		Table(g.table).
		Where("scope = ?", g.scope).
		Delete(&checkpointRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to reset checkpoints: %w", err)
	}
	return nil
}
