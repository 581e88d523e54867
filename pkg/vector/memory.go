package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used in tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[uuid.UUID]Point
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[uuid.UUID]Point)}
}

// EnsureCollection is a no-op for the in-memory store.
func (s *MemoryStore) EnsureCollection(ctx context.Context) error {
	return nil
}

// Upsert writes points, overwriting any with matching IDs.
func (s *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

// DeleteByConnection removes every point belonging to a connection.
func (s *MemoryStore) DeleteByConnection(ctx context.Context, connectionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.ConnectionID == connectionID {
			delete(s.points, id)
		}
	}
	return nil
}

// Search returns the closest points for a connection by cosine similarity.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, connectionID uuid.UUID, limit int) ([]TableMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []TableMatch
	for _, p := range s.points {
		if p.ConnectionID != connectionID {
			continue
		}
		matches = append(matches, TableMatch{
			SchemaName: p.SchemaName,
			TableName:  p.TableName,
			Document:   p.Document,
			Summary:    p.Summary,
			RowCount:   p.RowCount,
			Score:      cosineSimilarity(vector, p.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns how many points a connection has. Test helper.
func (s *MemoryStore) Count(connectionID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.points {
		if p.ConnectionID == connectionID {
			n++
		}
	}
	return n
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Ensure MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
