// Package gateway connects messaging channels to the pipeline. Each adapter
// runs its own receive loop; a single dispatcher fans events out to one
// worker per conversation so replies within a chat stay in order.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/xaenox/clone-bot/internal/models"
)

// ErrLoggedOut is a terminal disconnect. Adapters wrap it when credentials
// are revoked; the runner stops instead of reconnecting.
var ErrLoggedOut = errors.New("logged out")

// InboundEvent is one message from a channel, already filtered by the adapter
type InboundEvent struct {
	ID             string
	Channel        string
	ConversationID string
	MessageID      string
	Sender         models.Contact
	Message        models.IncomingMessage
	ReceivedAt     time.Time
}

func (e InboundEvent) conversationKey() string {
	return e.Channel + ":" + e.ConversationID
}

// Adapter is one messaging channel
type Adapter interface {
	Channel() string
	// Receive pushes events into sink until ctx is done or the transport fails
	Receive(ctx context.Context, sink chan<- InboundEvent) error
	Send(ctx context.Context, conversationID, text string) error
	SendTyping(ctx context.Context, conversationID string) error
	MarkRead(ctx context.Context, conversationID, messageID string) error
}

// Processor decides what to do with a message
type Processor interface {
	Process(ctx context.Context, msg models.IncomingMessage, contact models.Contact) (models.Outcome, error)
}

// Presence is the ghost-mode view the runner needs
type Presence interface {
	GhostModeEnabled(ctx context.Context) bool
	IsUserOffline(ctx context.Context) bool
	RunHeartbeat(ctx context.Context, interval time.Duration)
}

// ContactDirectory enriches senders with what the operator configured about them
type ContactDirectory map[string]models.Contact

// NewContactDirectory indexes contacts by lower-cased name
func NewContactDirectory(contacts []models.Contact) ContactDirectory {
	d := make(ContactDirectory, len(contacts))
	for _, c := range contacts {
		if c.Name == "" {
			continue
		}
		c.Known = true
		d[strings.ToLower(c.Name)] = c
	}
	return d
}

// Resolve merges the configured entry for sender, if any
func (d ContactDirectory) Resolve(sender models.Contact) models.Contact {
	entry, ok := d[strings.ToLower(sender.Name)]
	if !ok {
		return sender
	}
	sender.Known = true
	if entry.Closeness != "" {
		sender.Closeness = entry.Closeness
	}
	if entry.Relationship != "" {
		sender.Relationship = entry.Relationship
	}
	if entry.Rules != "" {
		sender.Rules = entry.Rules
	}
	return sender
}

func preview(text string) string {
	const n = 60
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
