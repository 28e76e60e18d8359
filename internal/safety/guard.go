// Package safety checks generated replies before they reach a contact and
// holds risky ones for a human.
package safety

import (
	"strings"

	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/persona"
)

// DefaultDeflectMessage is sent for avoided topics when the persona has no fallback
const DefaultDeflectMessage = "Thôi ko bàn cái này 😅"

// Action is what the guard wants done with a reply
type Action string

const (
	ActionAllow          Action = "allow"
	ActionDeflect        Action = "deflect"
	ActionQueueForReview Action = "queue_for_review"
	ActionBlock          Action = "block"
)

// Policy maps the worst issue severity to an action
type Policy struct {
	BlockAt models.Severity
	QueueAt models.Severity
}

func DefaultPolicy() Policy {
	return Policy{BlockAt: models.SeverityCritical, QueueAt: models.SeverityHigh}
}

// Verdict is the result of evaluating one reply
type Verdict struct {
	Safe           bool
	Action         Action
	Issues         []models.SafetyIssue
	DeflectMessage string
}

type Guard struct {
	profile persona.Profile
	policy  Policy
}

func NewGuard(profile persona.Profile, policy Policy) *Guard {
	def := DefaultPolicy()
	if policy.BlockAt == 0 {
		policy.BlockAt = def.BlockAt
	}
	if policy.QueueAt == 0 {
		policy.QueueAt = def.QueueAt
	}
	return &Guard{profile: profile, policy: policy}
}

// Evaluate checks reply against the persona's boundaries. An avoided topic in
// the incoming message short-circuits everything else with a deflection.
func (g *Guard) Evaluate(reply string, msg models.IncomingMessage, contact models.Contact) Verdict {
	incoming := strings.ToLower(msg.Text)
	for _, topic := range g.profile.AvoidTopicList() {
		if strings.Contains(incoming, topic) {
			return Verdict{
				Action:         ActionDeflect,
				DeflectMessage: g.deflectMessage(),
				Issues: []models.SafetyIssue{
					{Kind: models.IssueAvoidedTopic, Severity: models.SeverityMedium, Topic: topic},
				},
			}
		}
	}

	var issues []models.SafetyIssue

	if DetectAIReveal(reply) {
		issues = append(issues, models.SafetyIssue{Kind: models.IssueAIReveal, Severity: models.SeverityCritical})
	}

	lowered := strings.ToLower(reply)
	for _, topic := range g.profile.NeverShareTopics() {
		if strings.Contains(lowered, topic) {
			issues = append(issues, models.SafetyIssue{
				Kind:     models.IssueSensitiveInfo,
				Severity: models.SeverityHigh,
				Topic:    topic,
			})
		}
	}

	if !contact.Known && contact.DisplayName() == models.UnknownContactName {
		issues = append(issues, models.SafetyIssue{Kind: models.IssueUnknownContact, Severity: models.SeverityLow})
	}

	worst := models.Severity(0)
	for _, issue := range issues {
		worst = max(worst, issue.Severity)
	}

	switch {
	case worst >= g.policy.BlockAt:
		return Verdict{Action: ActionBlock, Issues: issues}
	case worst >= g.policy.QueueAt:
		return Verdict{Action: ActionQueueForReview, Issues: issues}
	}
	return Verdict{Safe: true, Action: ActionAllow, Issues: issues}
}

func (g *Guard) deflectMessage() string {
	if g.profile.DeflectMessage != "" {
		return g.profile.DeflectMessage
	}
	if g.profile.UnsureFallback != "" {
		return g.profile.UnsureFallback
	}
	return DefaultDeflectMessage
}
