// Package ghost tracks whether the real user is around, so the clone only
// answers while they are away.
package ghost

import (
	"context"
	"time"

	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	// OfflineThreshold is how stale a heartbeat may get before the user counts as offline
	OfflineThreshold = 5 * time.Minute
	// HeartbeatInterval is how often a live gateway refreshes presence
	HeartbeatInterval = 2 * time.Minute
)

type Tracker struct {
	store  storage.PresenceStore
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(store storage.PresenceStore, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Ping marks the user online and refreshes the heartbeat. Ghost mode is left as is.
func (t *Tracker) Ping(ctx context.Context) error {
	now := t.now()
	hb := &models.Heartbeat{Online: true, Timestamp: now}

	if prev := t.load(ctx); prev != nil {
		hb.GhostMode = prev.GhostMode
		if prev.Timestamp.After(now) {
			hb.Timestamp = prev.Timestamp
		}
	}
	hb.LastSeen = hb.Timestamp.UTC().Format(time.RFC3339)
	return t.store.SaveHeartbeat(ctx, hb)
}

// Enable turns ghost mode on and marks the user offline
func (t *Tracker) Enable(ctx context.Context) error {
	return t.write(ctx, false, true)
}

// Disable turns ghost mode off and marks the user back online
func (t *Tracker) Disable(ctx context.Context) error {
	return t.write(ctx, true, false)
}

func (t *Tracker) write(ctx context.Context, online, ghostMode bool) error {
	now := t.now()
	return t.store.SaveHeartbeat(ctx, &models.Heartbeat{
		Online:    online,
		GhostMode: ghostMode,
		Timestamp: now,
		LastSeen:  now.UTC().Format(time.RFC3339),
	})
}

// IsUserOffline is true without a heartbeat, when it says offline, or when it is stale
func (t *Tracker) IsUserOffline(ctx context.Context) bool {
	return t.isOffline(t.load(ctx))
}

func (t *Tracker) isOffline(hb *models.Heartbeat) bool {
	if hb == nil || !hb.Online {
		return true
	}
	return t.now().Sub(hb.Timestamp) > OfflineThreshold
}

// ShouldCloneReply reports whether ghost mode is on and the user is away
func (t *Tracker) ShouldCloneReply(ctx context.Context) bool {
	hb := t.load(ctx)
	return hb != nil && hb.GhostMode && t.isOffline(hb)
}

// GhostModeEnabled reports the stored ghost flag
func (t *Tracker) GhostModeEnabled(ctx context.Context) bool {
	hb := t.load(ctx)
	return hb != nil && hb.GhostMode
}

func (t *Tracker) Status(ctx context.Context) models.PresenceStatus {
	hb := t.load(ctx)
	if hb == nil {
		return models.PresenceStatus{
			LastSeen:      "never",
			IsUserOffline: true,
			State:         models.PresenceUnknown,
		}
	}

	status := models.PresenceStatus{
		GhostMode:     hb.GhostMode,
		Online:        hb.Online,
		LastSeen:      hb.LastSeen,
		IsUserOffline: t.isOffline(hb),
		State:         models.PresenceOffline,
	}
	if status.LastSeen == "" {
		status.LastSeen = "never"
	}
	switch {
	case hb.GhostMode:
		status.State = models.PresenceGhost
	case hb.Online:
		status.State = models.PresenceOnline
	}
	return status
}

// RunHeartbeat pings immediately and then every interval until ctx is done
func (t *Tracker) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	t.heartbeat(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Heartbeat stopped")
			return
		case <-ticker.C:
			t.heartbeat(ctx)
		}
	}
}

func (t *Tracker) heartbeat(ctx context.Context) {
	if err := t.Ping(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("Failed to write heartbeat", zap.Error(err))
	}
}

// load never fails: unreadable state is "no heartbeat"
func (t *Tracker) load(ctx context.Context) *models.Heartbeat {
	hb, err := t.store.LoadHeartbeat(ctx)
	if err != nil {
		t.logger.Debug("Heartbeat unreadable, treating as absent", zap.Error(err))
		return nil
	}
	return hb
}
