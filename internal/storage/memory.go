package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/clone-bot/internal/models"
)

type MemoryStorage struct {
	mu        sync.RWMutex
	reviews   []models.ReviewItem
	heartbeat *models.Heartbeat
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) LoadReviews(ctx context.Context) ([]models.ReviewItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ReviewItem, len(s.reviews))
	copy(out, s.reviews)
	return out, nil
}

func (s *MemoryStorage) AddReview(ctx context.Context, item models.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reviews {
		if existing.ID == item.ID {
			return nil
		}
	}
	s.reviews = append(s.reviews, item)
	return nil
}

func (s *MemoryStorage) ResolveReview(ctx context.Context, id string, status models.ReviewStatus, editedReply string, at time.Time) (models.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return resolveItem(s.reviews, id, status, editedReply, at)
}

func (s *MemoryStorage) LoadHeartbeat(ctx context.Context) (*models.Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.heartbeat == nil {
		return nil, nil
	}
	hb := *s.heartbeat
	return &hb, nil
}

func (s *MemoryStorage) SaveHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *hb
	s.heartbeat = &copied
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
