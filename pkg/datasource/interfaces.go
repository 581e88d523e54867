package datasource

import "context"

// Extractor profiles a target database's schema and per-column statistics.
type Extractor interface {
	// ExtractMetadata walks every user table and returns the full profile.
	// onProgress may be nil.
	ExtractMetadata(ctx context.Context, onProgress ProgressFunc) (*DatabaseMetadata, error)

	// Ping verifies the connection is usable.
	Ping(ctx context.Context) error

	// Close releases the underlying pool.
	Close()
}

// Executor runs read-only queries with a hard row cap.
type Executor interface {
	// Query executes sql wrapped in a limiting subquery so at most limit+1
	// rows are read; the extra row only signals truncation.
	Query(ctx context.Context, sql string, limit int) (*QueryResult, error)

	// Close releases the underlying pool.
	Close()
}
