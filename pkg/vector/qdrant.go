package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  uint64
}

// QdrantStore implements Store against a Qdrant instance over gRPC.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
	logger     *zap.Logger
}

// NewQdrantStore connects to Qdrant.
func NewQdrantStore(cfg *QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if cfg.Dimension == 0 {
		return nil, fmt.Errorf("embedding dimension is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger.Named("qdrant"),
	}, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	s.logger.Info("Created vector collection",
		zap.String("collection", s.collection),
		zap.Uint64("dimension", s.dimension))
	return nil
}

// Upsert writes points, overwriting any with matching IDs.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID.String()),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"connection_id": p.ConnectionID.String(),
				"schema_name":   p.SchemaName,
				"table_name":    p.TableName,
				"document":      p.Document,
				"summary":       p.Summary,
				"row_count":     p.RowCount,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qdrantPoints,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	return nil
}

// DeleteByConnection removes every point belonging to a connection.
func (s *QdrantStore) DeleteByConnection(ctx context.Context, connectionID uuid.UUID) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("connection_id", connectionID.String()),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points for connection %s: %w", connectionID, err)
	}
	return nil
}

// Search returns the closest points for a connection, best first.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, connectionID uuid.UUID, limit int) ([]TableMatch, error) {
	limitU := uint64(limit)

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("connection_id", connectionID.String()),
			},
		},
		Limit:       &limitU,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	matches := make([]TableMatch, 0, len(results))
	for _, r := range results {
		payload := r.GetPayload()
		matches = append(matches, TableMatch{
			SchemaName: payload["schema_name"].GetStringValue(),
			TableName:  payload["table_name"].GetStringValue(),
			Document:   payload["document"].GetStringValue(),
			Summary:    payload["summary"].GetStringValue(),
			RowCount:   payload["row_count"].GetIntegerValue(),
			Score:      r.GetScore(),
		})
	}

	return matches, nil
}

// Ensure QdrantStore implements Store at compile time.
var _ Store = (*QdrantStore)(nil)
