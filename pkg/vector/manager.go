package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumina-data/lumina-engine/pkg/apperrors"
	"github.com/lumina-data/lumina-engine/pkg/llm"
	"github.com/lumina-data/lumina-engine/pkg/retry"
)

// Document is the embeddable description of one table.
type Document struct {
	SchemaName string
	TableName  string
	Document   string
	Summary    string
	RowCount   int64
}

// Manager embeds table documents and keeps the vector index consistent with
// the most recent successful analysis run per connection.
type Manager struct {
	store    Store
	embedder llm.LLMClient
	model    string
	logger   *zap.Logger
}

// NewManager creates a vector index manager.
func NewManager(store Store, embedder llm.LLMClient, embeddingModel string, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		embedder: embedder,
		model:    embeddingModel,
		logger:   logger.Named("vector"),
	}
}

// PointID derives the deterministic point ID for a table within a connection.
// Re-analysis of the same table always maps to the same point, so upserts
// overwrite rather than accumulate.
func PointID(connectionID uuid.UUID, schemaName, tableName string) uuid.UUID {
	return uuid.NewSHA1(connectionID, []byte(schemaName+"."+tableName))
}

// ReplaceConnection replaces the connection's entire point set with docs.
// Prior points are deleted first so tables dropped from the source database
// never linger in the index.
func (m *Manager) ReplaceConnection(ctx context.Context, connectionID uuid.UUID, docs []Document) error {
	if err := m.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIndexing, err)
	}

	points, err := m.embedDocuments(ctx, connectionID, docs)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIndexing, err)
	}

	if err := m.store.DeleteByConnection(ctx, connectionID); err != nil {
		return fmt.Errorf("%w: clear prior index: %v", apperrors.ErrIndexing, err)
	}

	err = retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		return m.store.Upsert(ctx, points)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIndexing, err)
	}

	m.logger.Info("Replaced vector index for connection",
		zap.String("connection_id", connectionID.String()),
		zap.Int("points", len(points)))
	return nil
}

// DeleteConnection removes a connection's points entirely.
func (m *Manager) DeleteConnection(ctx context.Context, connectionID uuid.UUID) error {
	if err := m.store.DeleteByConnection(ctx, connectionID); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIndexing, err)
	}
	return nil
}

// Search embeds the query text and returns ranked table matches.
// Failures surface as retrieval-unavailable, never as silently empty results.
func (m *Manager) Search(ctx context.Context, queryText string, connectionID uuid.UUID, limit int) ([]TableMatch, error) {
	// Only transient embedding failures are retried; an auth or model error
	// will not get better on the next attempt.
	vec, err := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() ([]float32, error) {
		return m.embedder.CreateEmbedding(ctx, queryText, m.model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", apperrors.ErrRetrievalUnavailable, err)
	}

	matches, err := m.store.Search(ctx, vec, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRetrievalUnavailable, err)
	}

	return matches, nil
}

// embedDocuments embeds all documents in one batch call where possible.
func (m *Manager) embedDocuments(ctx context.Context, connectionID uuid.UUID, docs []Document) ([]Point, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(docs))
	for i, d := range docs {
		inputs[i] = d.Document
	}

	vectors, err := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() ([][]float32, error) {
		return m.embedder.CreateEmbeddings(ctx, inputs, m.model)
	})
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d documents", len(vectors), len(docs))
	}

	points := make([]Point, len(docs))
	for i, d := range docs {
		points[i] = Point{
			ID:           PointID(connectionID, d.SchemaName, d.TableName),
			Vector:       vectors[i],
			ConnectionID: connectionID,
			SchemaName:   d.SchemaName,
			TableName:    d.TableName,
			Document:     d.Document,
			Summary:      d.Summary,
			RowCount:     d.RowCount,
		}
	}

	return points, nil
}
