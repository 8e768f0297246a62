package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore writes batches through gorm. Each InBatch call is one transaction.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a database connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Truncate deletes every row of table.
func (s *GormStore) Truncate(ctx context.Context, table string) error {
	if s.db == nil {
		return errors.New("sync database not configured")
	}
	if err := s.db.WithContext(ctx).Exec("DELETE FROM ?", clause.Table{Name: table}).Error; err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

func (s *GormStore) InBatch(ctx context.Context, fn func(tx Tx) error) error {
	if s.db == nil {
		return errors.New("sync database not configured")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// Prepare creates table when it is missing and adds missing columns as TEXT.
// The key column becomes the primary key of a created table.
func (s *GormStore) Prepare(ctx context.Context, table, keyColumn string, columns []string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("sync database not configured")
	}
	db := s.db.WithContext(ctx)
	migrator := db.Migrator()

	if !migrator.HasTable(table) {
		sql, vars := createTableSQL(table, keyColumn, columns)
		if err := db.Exec(sql, vars...).Error; err != nil {
			return nil, fmt.Errorf("failed to create table %s: %w", table, err)
		}
		return []string{fmt.Sprintf("Created table: %s (%d columns)", table, len(columns))}, nil
	}

	var changes []string
	for _, col := range columns {
		if migrator.HasColumn(table, col) {
			continue
		}
		err := db.Exec("ALTER TABLE ? ADD COLUMN ? TEXT", clause.Table{Name: table}, clause.Column{Name: col}).Error
		if err != nil {
			return changes, fmt.Errorf("failed to add column %s: %w", col, err)
		}
		changes = append(changes, fmt.Sprintf("Added column: %s (TEXT)", col))
	}
	return changes, nil
}

func createTableSQL(table, keyColumn string, columns []string) (string, []any) {
	cols := columns
	if keyColumn != "" && !slices.Contains(cols, keyColumn) {
		cols = append([]string{keyColumn}, cols...)
	}

	defs := make([]string, 0, len(cols))
	vars := []any{clause.Table{Name: table}}
	for _, c := range cols {
		if c == keyColumn {
			defs = append(defs, "? VARCHAR(255) NOT NULL PRIMARY KEY")
		} else {
			defs = append(defs, "? TEXT")
		}
		vars = append(vars, clause.Column{Name: c})
	}
	return "CREATE TABLE ? (" + strings.Join(defs, ", ") + ")", vars
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) BulkUpsert(ctx context.Context, table string, batch Batch, conflict []string) error {
	if len(batch.Rows) == 0 {
		return nil
	}
	q := t.db.WithContext(ctx).Table(table)
	if len(conflict) > 0 {
		q = q.Clauses(onConflict(batch.Columns, conflict))
	}
	if err := q.Create(batch.Rows).Error; err != nil {
		return fmt.Errorf("failed to write %d rows to %s: %w", len(batch.Rows), table, err)
	}
	return nil
}

// onConflict updates every non-key column of an existing row.
func onConflict(columns, keys []string) clause.OnConflict {
	oc := clause.OnConflict{}
	for _, k := range keys {
		oc.Columns = append(oc.Columns, clause.Column{Name: k})
	}
	var updates []string
	for _, c := range columns {
		if !slices.Contains(keys, c) {
			updates = append(updates, c)
		}
	}
	if len(updates) == 0 {
		oc.DoNothing = true
		return oc
	}
	oc.DoUpdates = clause.AssignmentColumns(updates)
	return oc
}
