package models

import "time"

// Heartbeat is the single presence record for the deployment
type Heartbeat struct {
	Online    bool      `json:"online"`
	GhostMode bool      `json:"ghost_mode"`
	Timestamp time.Time `json:"timestamp"`
	LastSeen  string    `json:"last_seen"`
}

// PresenceState is derived from a heartbeat, never stored
type PresenceState string

const (
	PresenceOnline  PresenceState = "online"
	PresenceOffline PresenceState = "offline"
	PresenceGhost   PresenceState = "ghost"
	PresenceUnknown PresenceState = "unknown"
)

// PresenceStatus is the operator-facing view of the heartbeat
type PresenceStatus struct {
	GhostMode     bool          `json:"ghost_mode"`
	Online        bool          `json:"online"`
	LastSeen      string        `json:"last_seen"`
	IsUserOffline bool          `json:"is_user_offline"`
	State         PresenceState `json:"status"`
}
