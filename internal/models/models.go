package models

import "time"

// IncomingMessage is a single inbound chat message as seen by the pipeline
type IncomingMessage struct {
	Text       string `json:"text"`
	IsGroup    bool   `json:"is_group,omitempty"`
	MentionsMe bool   `json:"mentions_me,omitempty"`
	IsMedia    bool   `json:"is_media,omitempty"`
	HasCaption bool   `json:"has_caption,omitempty"`
}

// Closeness tags that change reply timing
const (
	ClosenessClose  = "close"
	ClosenessFamily = "family"
)

// UnknownContactName is used by gateways when the sender has no display name
const UnknownContactName = "Unknown"

// Contact describes who sent a message. Supplied by the gateway, never stored.
type Contact struct {
	Name         string `json:"name"`
	Channel      string `json:"channel,omitempty"`
	Closeness    string `json:"closeness,omitempty"`
	Relationship string `json:"relationship,omitempty"`
	Rules        string `json:"rules,omitempty"`
	Known        bool   `json:"known,omitempty"`
	IsGroup      bool   `json:"is_group,omitempty"`
}

// DisplayName returns the contact name, falling back to UnknownContactName
func (c Contact) DisplayName() string {
	if c.Name == "" {
		return UnknownContactName
	}
	return c.Name
}

// Exchange is one inbound message and the reply that was sent for it
type Exchange struct {
	Timestamp time.Time `json:"timestamp"`
	Them      string    `json:"them"`
	Clone     string    `json:"clone"`
}

// HistoryExchange is a past conversation turn used to seed retrieval memory
type HistoryExchange struct {
	Contact      string `json:"contact"`
	Date         string `json:"date,omitempty"`
	TheirMessage string `json:"their_message"`
	YourReply    string `json:"your_reply"`
}
