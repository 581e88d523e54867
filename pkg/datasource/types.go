// Package datasource defines the contract for target-database access:
// schema metadata extraction and bounded read-only query execution.
package datasource

// ConnParams carries the decrypted connection parameters for a target database.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
}

// ColumnInfo is the raw per-column profile produced by extraction.
type ColumnInfo struct {
	ColumnName    string
	DataType      string
	IsNullable    bool
	IsPrimaryKey  bool
	IsForeignKey  bool
	DistinctCount int64
	NullCount     int64
	// DistinctValues is the complete value set, collected only when the
	// distinct count is at or below the configured category threshold.
	DistinctValues []string
	// SampleValues is a random sample, collected for higher-cardinality columns.
	SampleValues []string
}

// ForeignKeyInfo describes one FK edge out of a table.
type ForeignKeyInfo struct {
	ConstraintName string
	SourceColumn   string
	TargetSchema   string
	TargetTable    string
	TargetColumn   string
}

// TableInfo is the raw profile of one table.
type TableInfo struct {
	SchemaName  string
	TableName   string
	RowCount    int64
	Columns     []ColumnInfo
	ForeignKeys []ForeignKeyInfo
}

// DatabaseMetadata is the full extraction result for a target database.
type DatabaseMetadata struct {
	DatabaseName string
	Tables       []TableInfo
}

// ProgressFunc receives extraction progress in [0, 1] plus a short message.
type ProgressFunc func(fraction float64, message string)

// QueryResult holds rows returned from a read-only query execution.
type QueryResult struct {
	Columns   []string
	Rows      []map[string]any
	RowCount  int
	Truncated bool
}
