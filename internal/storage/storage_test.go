package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

func sampleReview(id string) models.ReviewItem {
	return models.ReviewItem{
		ID:        id,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:    models.ReviewPending,
		Contact:   "Alice",
		Message:   "how much do you earn",
		Reply:     "my personal finances are fine",
		Issues: []models.SafetyIssue{
			{Kind: models.IssueSensitiveInfo, Severity: models.SeverityHigh, Topic: "personal finances"},
		},
	}
}

func exerciseStorage(t *testing.T, s Storage) {
	ctx := context.Background()

	hb, err := s.LoadHeartbeat(ctx)
	require.NoError(t, err)
	assert.Nil(t, hb)

	items, err := s.LoadReviews(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	first := sampleReview("01A")
	require.NoError(t, s.AddReview(ctx, first))

	reviewed := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	resolved, err := s.ResolveReview(ctx, "01A", models.ReviewRejected, "no comment", reviewed)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, resolved.Status)
	assert.Equal(t, "no comment", resolved.EditedReply)

	_, err = s.ResolveReview(ctx, "01A", models.ReviewApproved, "", reviewed)
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	_, err = s.ResolveReview(ctx, "missing", models.ReviewApproved, "", reviewed)
	assert.ErrorIs(t, err, ErrReviewNotFound)

	// re-adding a known id never resets its status
	require.NoError(t, s.AddReview(ctx, first))
	require.NoError(t, s.AddReview(ctx, sampleReview("01B")))

	items, err = s.LoadReviews(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ReviewRejected, items[0].Status)
	require.NotNil(t, items[0].ReviewedAt)
	assert.True(t, reviewed.Equal(*items[0].ReviewedAt))
	assert.Equal(t, models.ReviewPending, items[1].Status)
	assert.Equal(t, models.SeverityHigh, items[1].Issues[0].Severity)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveHeartbeat(ctx, &models.Heartbeat{Online: true, Timestamp: now, LastSeen: now.Format(time.RFC3339)}))
	require.NoError(t, s.SaveHeartbeat(ctx, &models.Heartbeat{GhostMode: true, Timestamp: now, LastSeen: now.Format(time.RFC3339)}))

	hb, err = s.LoadHeartbeat(ctx)
	require.NoError(t, err)
	require.NotNil(t, hb)
	assert.False(t, hb.Online)
	assert.True(t, hb.GhostMode)
	assert.True(t, now.Equal(hb.Timestamp))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s := NewFileStorage(dir)
	exerciseStorage(t, s)

	_, err := os.Stat(filepath.Join(dir, ReviewQueueFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, HeartbeatFile))
	assert.NoError(t, err)
}

func TestFileStorageCorruptState(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ReviewQueueFile), []byte("[{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, HeartbeatFile), []byte("{"), 0o644))

	s := NewFileStorage(dir)
	_, err := s.LoadReviews(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = s.LoadHeartbeat(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStorageSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, b := NewFileStorage(dir), NewFileStorage(dir)

	require.NoError(t, a.AddReview(ctx, sampleReview("01A")))
	_, err := b.ResolveReview(ctx, "01A", models.ReviewApproved, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, a.AddReview(ctx, sampleReview("01B")))

	items, err := b.LoadReviews(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.ReviewApproved, items[0].Status)
	assert.Equal(t, models.ReviewPending, items[1].Status)
}

func TestFileStorageAddOverCorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ReviewQueueFile), []byte("{"), 0o644))

	s := NewFileStorage(dir)
	require.NoError(t, s.AddReview(ctx, sampleReview("01A")))

	items, err := s.LoadReviews(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("CLONEBOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CLONEBOT_TEST_DATABASE_URL not set")
	}

	s, err := OpenPostgres(dsn, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.Exec(`TRUNCATE review_items; DELETE FROM presence`)
	require.NoError(t, err)

	exerciseStorage(t, s)
}
