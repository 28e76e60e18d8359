package safety

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/storage"
	"go.uber.org/zap"
)

var (
	ErrReviewNotFound  = storage.ErrReviewNotFound
	ErrAlreadyReviewed = storage.ErrAlreadyReviewed
)

// ReviewQueue holds replies that need a human decision. The store is the
// source of truth: another process may resolve items at any time, so reads
// go back to it. The local copy is only used while the store is unavailable.
type ReviewQueue struct {
	mu      sync.Mutex
	items   []models.ReviewItem
	store   storage.ReviewStore
	logger  *zap.Logger
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewReviewQueue loads existing items. Unreadable state starts an empty queue.
func NewReviewQueue(ctx context.Context, store storage.ReviewStore, logger *zap.Logger) *ReviewQueue {
	items, err := store.LoadReviews(ctx)
	if err != nil {
		logger.Warn("Failed to load review queue, starting empty", zap.Error(err))
		items = nil
	}
	return &ReviewQueue{
		items:   items,
		store:   store,
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Add queues a reply as pending and returns the stored item
func (q *ReviewQueue) Add(ctx context.Context, contact, message, reply string, issues []models.SafetyIssue) models.ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	item := models.ReviewItem{
		ID:        ulid.MustNew(ulid.Timestamp(now), q.entropy).String(),
		Timestamp: now,
		Status:    models.ReviewPending,
		Contact:   contact,
		Message:   message,
		Reply:     reply,
		Issues:    append([]models.SafetyIssue(nil), issues...),
	}
	q.items = append(q.items, item)

	if err := q.store.AddReview(ctx, item); err != nil {
		q.logger.Warn("Failed to persist review item",
			zap.Error(err),
			zap.String("id", item.ID))
	}
	return item
}

func (q *ReviewQueue) Pending(ctx context.Context) []models.ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.refresh(ctx)
	var out []models.ReviewItem
	for _, item := range q.items {
		if item.Status == models.ReviewPending {
			out = append(out, item)
		}
	}
	return out
}

// Approve marks a pending item as approved for sending
func (q *ReviewQueue) Approve(ctx context.Context, id string) (models.ReviewItem, error) {
	return q.resolve(ctx, id, models.ReviewApproved, "")
}

// Reject marks a pending item as rejected, optionally with a corrected reply
func (q *ReviewQueue) Reject(ctx context.Context, id, editedReply string) (models.ReviewItem, error) {
	return q.resolve(ctx, id, models.ReviewRejected, editedReply)
}

func (q *ReviewQueue) resolve(ctx context.Context, id string, status models.ReviewStatus, edited string) (models.ReviewItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	item, err := q.store.ResolveReview(ctx, id, status, edited, now)
	switch {
	case err == nil:
		q.replace(item)
		return item, nil
	case errors.Is(err, ErrReviewNotFound), errors.Is(err, ErrAlreadyReviewed):
		return item, err
	}

	q.logger.Warn("Failed to persist review decision, keeping it locally",
		zap.Error(err),
		zap.String("id", id))
	for i := range q.items {
		local := &q.items[i]
		if local.ID != id {
			continue
		}
		if local.Status != models.ReviewPending {
			return *local, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, id, local.Status)
		}
		local.Status = status
		local.EditedReply = edited
		local.ReviewedAt = &now
		return *local, nil
	}
	return models.ReviewItem{}, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
}

func (q *ReviewQueue) Stats(ctx context.Context) models.ReviewStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.refresh(ctx)
	stats := models.ReviewStats{Total: len(q.items)}
	for _, item := range q.items {
		switch item.Status {
		case models.ReviewPending:
			stats.Pending++
		case models.ReviewApproved:
			stats.Approved++
		case models.ReviewRejected:
			stats.Rejected++
		}
	}
	return stats
}

// refresh must be called with mu held
func (q *ReviewQueue) refresh(ctx context.Context) {
	items, err := q.store.LoadReviews(ctx)
	if err != nil {
		q.logger.Debug("Using local review queue", zap.Error(err))
		return
	}
	q.items = items
}

func (q *ReviewQueue) replace(item models.ReviewItem) {
	for i := range q.items {
		if q.items[i].ID == item.ID {
			q.items[i] = item
			return
		}
	}
	q.items = append(q.items, item)
}
