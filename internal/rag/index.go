package rag

import (
	"context"
	"sort"
	"sync"

	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
)

// Match is a stored record and its raw similarity to the query vector
type Match struct {
	Score  float64
	Record models.MemoryRecord
}

// Index is an append-only vector store
type Index interface {
	Insert(ctx context.Context, rec models.MemoryRecord) error
	Query(ctx context.Context, vector embedding.Vector, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// MemoryIndex keeps vectors in process. Used for tests and ephemeral runs.
type MemoryIndex struct {
	mu      sync.RWMutex
	records []models.MemoryRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Insert(ctx context.Context, rec models.MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector embedding.Vector, k int) ([]Match, error) {
	m.mu.RLock()
	matches := make([]Match, 0, len(m.records))
	for _, rec := range m.records {
		matches = append(matches, Match{Score: embedding.CosineSimilarity(vector, rec.Vector), Record: rec})
	}
	m.mu.RUnlock()
	return topK(matches, k), nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryIndex) Close() error { return nil }

// topK sorts by score descending and keeps the first k
func topK(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
