package models

import (
	"time"

	"github.com/google/uuid"
)

// IndexingStrategy classifies how a column's values are made searchable.
type IndexingStrategy string

const (
	// StrategyCategorical enumerates the full value set (low-cardinality columns).
	StrategyCategorical IndexingStrategy = "categorical"
	// StrategyVector includes sampled values in the embedded document (free text).
	StrategyVector IndexingStrategy = "vector"
	// StrategySkip excludes values entirely (keys, timestamps, blobs).
	StrategySkip IndexingStrategy = "skip"
)

// ValidIndexingStrategies contains all valid strategy values.
var ValidIndexingStrategies = []IndexingStrategy{
	StrategyCategorical,
	StrategyVector,
	StrategySkip,
}

// IsValidIndexingStrategy checks if the given strategy is valid.
func IsValidIndexingStrategy(s IndexingStrategy) bool {
	for _, v := range ValidIndexingStrategies {
		if v == s {
			return true
		}
	}
	return false
}

// strategyCost orders strategies by how much work they imply at index time.
var strategyCost = map[IndexingStrategy]int{
	StrategySkip:        0,
	StrategyVector:      1,
	StrategyCategorical: 2,
}

// Cost returns the relative expense of a strategy. Unknown strategies cost the most.
func (s IndexingStrategy) Cost() int {
	if c, ok := strategyCost[s]; ok {
		return c
	}
	return strategyCost[StrategyCategorical]
}

// Cheaper returns the less expensive of two strategies.
// Used for tie-breaks when rule and advisory layers disagree.
func Cheaper(a, b IndexingStrategy) IndexingStrategy {
	if b.Cost() < a.Cost() {
		return b
	}
	return a
}

// TableInsight is the profiled knowledge for a single table in a connection.
type TableInsight struct {
	ID           uuid.UUID         `json:"id"`
	ConnectionID uuid.UUID         `json:"connection_id"`
	SchemaName   string            `json:"schema_name"`
	TableName    string            `json:"table_name"`
	RowCount     int64             `json:"row_count"`
	Document     string            `json:"document"`
	Summary      string            `json:"summary"`
	Columns      []*ColumnMetadata `json:"columns,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ColumnMetadata holds per-column statistics and the decided indexing strategy.
// CategoricalValues is populated only when Strategy is categorical and the
// distinct count is at or below the configured threshold; SampleValues is
// populated otherwise (for non-skip columns).
type ColumnMetadata struct {
	ID                uuid.UUID        `json:"id"`
	InsightID         uuid.UUID        `json:"insight_id"`
	ColumnName        string           `json:"column_name"`
	DataType          string           `json:"data_type"`
	IsNullable        bool             `json:"is_nullable"`
	IsPrimaryKey      bool             `json:"is_primary_key"`
	IsForeignKey      bool             `json:"is_foreign_key"`
	DistinctCount     int64            `json:"distinct_count"`
	NullCount         int64            `json:"null_count"`
	Strategy          IndexingStrategy `json:"strategy"`
	StrategyReasoning string           `json:"strategy_reasoning,omitempty"`
	CategoricalValues []string         `json:"categorical_values,omitempty"`
	SampleValues      []string         `json:"sample_values,omitempty"`
	Summary           string           `json:"summary,omitempty"`
}

// IndexingReport summarizes strategy decisions across a connection's columns.
type IndexingReport struct {
	ConnectionID       uuid.UUID `json:"connection_id"`
	TableCount         int       `json:"table_count"`
	ColumnCount        int       `json:"column_count"`
	CategoricalColumns []string  `json:"categorical_columns"`
	VectorColumns      []string  `json:"vector_columns"`
	SkippedColumns     []string  `json:"skipped_columns"`
}
