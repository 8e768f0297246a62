package database

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ColumnInfo describes one column of a destination table.
type ColumnInfo struct {
	Field      string `json:"field"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableInfo is a summary of a destination table.
type TableInfo struct {
	Name    string       `json:"name"`
	Exists  bool         `json:"exists"`
	Rows    int64        `json:"rows"`
	Columns []ColumnInfo `json:"columns,omitempty"`
}

// GetTableColumns retrieves the column definitions for a given table.
// A missing table has no columns.
func GetTableColumns(db *gorm.DB, tableName string) ([]ColumnInfo, error) {
	migrator := db.Migrator()
	if !migrator.HasTable(tableName) {
		return nil, nil
	}
	types, err := migrator.ColumnTypes(tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}

	columns := make([]ColumnInfo, 0, len(types))
	for _, ct := range types {
		col := ColumnInfo{
			Field: strings.ToLower(ct.Name()),
			Type:  strings.ToLower(ct.DatabaseTypeName()),
		}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if pk, ok := ct.PrimaryKey(); ok {
			col.PrimaryKey = pk
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// InspectTable returns the columns and row count of a table.
func InspectTable(ctx context.Context, db *gorm.DB, tableName string) (TableInfo, error) {
	info := TableInfo{Name: tableName}
	db = db.WithContext(ctx)

	columns, err := GetTableColumns(db, tableName)
	if err != nil {
		return info, err
	}
	if columns == nil {
		return info, nil
	}
	info.Exists = true
	info.Columns = columns

	if err := db.Table(tableName).Count(&info.Rows).Error; err != nil {
		return info, fmt.Errorf("failed to count rows of %s: %w", tableName, err)
	}
	return info, nil
}
