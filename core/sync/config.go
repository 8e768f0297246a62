package sync

// Config holds configuration for loading records into the destination database.
type Config struct {
	// BatchSize is the number of records per transaction.
	BatchSize int `mapstructure:"batch_size" default:"100"`
	// Mode is truncate (empty the table, then insert) or upsert (merge by key).
	Mode string `mapstructure:"mode" default:"truncate"`
	// ParentsKey, ChildrenKey and UnifiedKey are the conflict columns used by
	// upsert mode and the primary keys of created tables.
	ParentsKey  string `mapstructure:"parents_key" default:"slug"`
	ChildrenKey string `mapstructure:"children_key" default:"job_key"`
	UnifiedKey  string `mapstructure:"unified_key" default:"job_key"`
	// ParentsTable receives the harvested companies.
	ParentsTable string `mapstructure:"parents_table" default:"hiring_companies"`
	// ChildrenTable receives the harvested job postings.
	ChildrenTable string `mapstructure:"children_table" default:"yc_jobs"`
	// UnifiedTable receives the reconciled records.
	UnifiedTable string `mapstructure:"unified_table" default:"yc_jobs_join"`
	// CreateTables adds missing tables and columns before loading.
	CreateTables bool `mapstructure:"create_tables" default:"true"`
}
