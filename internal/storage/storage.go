package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/clone-bot/internal/models"
)

// ErrCorrupt marks persisted state that exists but cannot be decoded.
// Callers treat it as "no prior state".
var ErrCorrupt = errors.New("stored state is corrupt")

var (
	ErrReviewNotFound  = errors.New("review item not found")
	ErrAlreadyReviewed = errors.New("review item already reviewed")
)

// Storage is everything the responder persists outside the vector index
type Storage interface {
	ReviewStore
	PresenceStore
	Close() error
}

// ReviewStore persists review items one at a time. Several processes may
// share a store, so a resolution is checked against the stored status.
type ReviewStore interface {
	LoadReviews(ctx context.Context) ([]models.ReviewItem, error)
	// AddReview stores a new item. An existing id is left untouched.
	AddReview(ctx context.Context, item models.ReviewItem) error
	// ResolveReview moves a pending item to status. It returns
	// ErrReviewNotFound or ErrAlreadyReviewed when that is not possible.
	ResolveReview(ctx context.Context, id string, status models.ReviewStatus, editedReply string, at time.Time) (models.ReviewItem, error)
}

// resolveItem applies a resolution to the matching item in items
func resolveItem(items []models.ReviewItem, id string, status models.ReviewStatus, editedReply string, at time.Time) (models.ReviewItem, error) {
	for i := range items {
		item := &items[i]
		if item.ID != id {
			continue
		}
		if item.Status != models.ReviewPending {
			return *item, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, id, item.Status)
		}
		item.Status = status
		item.EditedReply = editedReply
		item.ReviewedAt = &at
		return *item, nil
	}
	return models.ReviewItem{}, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
}

// PresenceStore persists the single heartbeat record.
// LoadHeartbeat returns nil, nil when nothing has been written yet.
type PresenceStore interface {
	LoadHeartbeat(ctx context.Context) (*models.Heartbeat, error)
	SaveHeartbeat(ctx context.Context, hb *models.Heartbeat) error
}
