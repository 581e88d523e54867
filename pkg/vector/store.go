// Package vector manages the semantic table index: embedding insight
// documents, replacing a connection's points atomically, and similarity search.
package vector

import (
	"context"

	"github.com/google/uuid"
)

// Point is one embedded table document with its payload.
type Point struct {
	ID           uuid.UUID
	Vector       []float32
	ConnectionID uuid.UUID
	SchemaName   string
	TableName    string
	Document     string
	Summary      string
	RowCount     int64
}

// TableMatch is one ranked retrieval result.
type TableMatch struct {
	SchemaName string
	TableName  string
	Document   string
	Summary    string
	RowCount   int64
	Score      float32
}

// Store abstracts the vector database behind the index manager.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// Upsert writes points, overwriting any with matching IDs.
	Upsert(ctx context.Context, points []Point) error

	// DeleteByConnection removes every point belonging to a connection.
	DeleteByConnection(ctx context.Context, connectionID uuid.UUID) error

	// Search returns the closest points for a connection, best first.
	Search(ctx context.Context, vector []float32, connectionID uuid.UUID, limit int) ([]TableMatch, error)
}
