package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xaenox/clone-bot/internal/models"
)

const (
	ReviewQueueFile = "review-queue.json"
	HeartbeatFile   = "heartbeat.json"
)

// FileStorage keeps state as pretty-printed JSON files in a data directory.
// Review changes re-read the file first so items written by another
// process are kept.
type FileStorage struct {
	mu      sync.Mutex
	dataDir string

	// reviewMu serializes read-modify-write cycles on the review file
	reviewMu sync.Mutex
}

func NewFileStorage(dataDir string) *FileStorage {
	return &FileStorage{dataDir: dataDir}
}

func (s *FileStorage) LoadReviews(ctx context.Context) ([]models.ReviewItem, error) {
	var items []models.ReviewItem
	found, err := s.readJSON(ReviewQueueFile, &items)
	if err != nil {
		return nil, err
	}
	if !found || items == nil {
		return []models.ReviewItem{}, nil
	}
	return items, nil
}

func (s *FileStorage) AddReview(ctx context.Context, item models.ReviewItem) error {
	s.reviewMu.Lock()
	defer s.reviewMu.Unlock()

	items, err := s.LoadReviews(ctx)
	if errors.Is(err, ErrCorrupt) {
		items = []models.ReviewItem{}
	} else if err != nil {
		return err
	}
	for _, existing := range items {
		if existing.ID == item.ID {
			return nil
		}
	}
	return s.writeJSON(ReviewQueueFile, append(items, item))
}

func (s *FileStorage) ResolveReview(ctx context.Context, id string, status models.ReviewStatus, editedReply string, at time.Time) (models.ReviewItem, error) {
	s.reviewMu.Lock()
	defer s.reviewMu.Unlock()

	items, err := s.LoadReviews(ctx)
	if err != nil {
		return models.ReviewItem{}, err
	}
	item, err := resolveItem(items, id, status, editedReply, at)
	if err != nil {
		return item, err
	}
	if err := s.writeJSON(ReviewQueueFile, items); err != nil {
		return models.ReviewItem{}, err
	}
	return item, nil
}

func (s *FileStorage) LoadHeartbeat(ctx context.Context) (*models.Heartbeat, error) {
	var hb models.Heartbeat
	found, err := s.readJSON(HeartbeatFile, &hb)
	if err != nil || !found {
		return nil, err
	}
	return &hb, nil
}

func (s *FileStorage) SaveHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	return s.writeJSON(HeartbeatFile, hb)
}

func (s *FileStorage) Close() error {
	return nil
}

func (s *FileStorage) readJSON(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return true, nil
}

// writeJSON replaces the file atomically so a crash never leaves half a document
func (s *FileStorage) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("error creating data dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dataDir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dataDir, name)); err != nil {
		return fmt.Errorf("error replacing %s: %w", name, err)
	}
	return nil
}
