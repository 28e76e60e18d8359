package models

import "time"

// Action is the terminal result of processing one inbound message
type Action string

const (
	ActionIgnore  Action = "ignore"
	ActionBlocked Action = "blocked"
	ActionQueued  Action = "queued"
	ActionReply   Action = "reply"
)

// Outcome is what the pipeline hands back to a gateway.
// Replies is non-empty exactly when Action is ActionReply.
type Outcome struct {
	Action         Action        `json:"action"`
	Replies        []string      `json:"replies"`
	Delay          time.Duration `json:"delay"`
	TypingDuration time.Duration `json:"typing_duration"`
	Issues         []SafetyIssue `json:"issues,omitempty"`
}

// IssueKind names a safety check
type IssueKind string

const (
	IssueAIReveal       IssueKind = "ai_reveal"
	IssueSensitiveInfo  IssueKind = "sensitive_info"
	IssueAvoidedTopic   IssueKind = "avoided_topic"
	IssueUnknownContact IssueKind = "unknown_contact"
)

// Severity orders safety issues; higher values are worse
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity converts a severity name back into a Severity
func ParseSeverity(name string) (Severity, bool) {
	for sev, n := range severityNames {
		if n == name {
			return sev, true
		}
	}
	return 0, false
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	sev, ok := ParseSeverity(string(text))
	if !ok {
		*s = 0
		return nil
	}
	*s = sev
	return nil
}

// SafetyIssue is one finding from the safety guard
type SafetyIssue struct {
	Kind     IssueKind `json:"type"`
	Severity Severity  `json:"severity"`
	Topic    string    `json:"topic,omitempty"`
}
