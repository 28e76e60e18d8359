package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/persona"
)

var alice = models.Contact{Name: "Alice", Known: true}

func TestDetectAIReveal(t *testing.T) {
	for _, text := range []string{
		"As an AI, I can't say",
		"well I'm a chatbot lol",
		"I don't have personal opinions on that",
		"tôi là một AI thôi",
		"đây là mô hình ngôn ngữ",
		"Is there anything else?",
	} {
		assert.True(t, DetectAIReveal(text), text)
	}
	for _, text := range []string{
		"ok lunch at 12",
		"chain of trainings",
		"tôi là người mà",
	} {
		assert.False(t, DetectAIReveal(text), text)
	}
}

func TestCleanAIReveal(t *testing.T) {
	assert.Equal(t, "sure, see you at 7", CleanAIReveal("I understand your concern. sure, see you at 7"))
	assert.Equal(t, "ok", CleanAIReveal("ok Let me know if you need anything else!"))
	assert.Equal(t, "", CleanAIReveal("How can I assist you?"))
}

func TestEvaluateBlocksAIReveal(t *testing.T) {
	g := NewGuard(persona.Profile{}, Policy{})
	v := g.Evaluate("As an AI I can't eat", models.IncomingMessage{Text: "dinner?"}, alice)

	assert.False(t, v.Safe)
	assert.Equal(t, ActionBlock, v.Action)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, models.IssueAIReveal, v.Issues[0].Kind)
	assert.Equal(t, models.SeverityCritical, v.Issues[0].Severity)
}

func TestEvaluateQueuesSensitiveInfo(t *testing.T) {
	g := NewGuard(persona.Profile{NeverShare: "salary, Address"}, Policy{})
	v := g.Evaluate("my salary is fine, address is secret", models.IncomingMessage{Text: "how's work"}, alice)

	assert.Equal(t, ActionQueueForReview, v.Action)
	require.Len(t, v.Issues, 2)
	assert.Equal(t, "salary", v.Issues[0].Topic)
	assert.Equal(t, "address", v.Issues[1].Topic)
}

func TestEvaluateDefaultNeverShare(t *testing.T) {
	g := NewGuard(persona.Profile{}, Policy{})
	v := g.Evaluate("my passwords are all 1234", models.IncomingMessage{}, alice)
	assert.Equal(t, ActionQueueForReview, v.Action)
}

func TestEvaluateDeflectShortCircuits(t *testing.T) {
	g := NewGuard(persona.Profile{AvoidTopics: "politics, religion"}, Policy{})
	v := g.Evaluate("As an AI I think", models.IncomingMessage{Text: "what about POLITICS"}, models.Contact{Name: "Unknown"})

	assert.Equal(t, ActionDeflect, v.Action)
	assert.Equal(t, DefaultDeflectMessage, v.DeflectMessage)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, models.IssueAvoidedTopic, v.Issues[0].Kind)
	assert.Equal(t, models.SeverityMedium, v.Issues[0].Severity)
	assert.Equal(t, "politics", v.Issues[0].Topic)

	g = NewGuard(persona.Profile{AvoidTopics: "politics", UnsureFallback: "idk man"}, Policy{})
	assert.Equal(t, "idk man", g.Evaluate("", models.IncomingMessage{Text: "politics"}, alice).DeflectMessage)

	g = NewGuard(persona.Profile{AvoidTopics: "politics", UnsureFallback: "idk", DeflectMessage: "nah"}, Policy{})
	assert.Equal(t, "nah", g.Evaluate("", models.IncomingMessage{Text: "politics"}, alice).DeflectMessage)
}

func TestEvaluateUnknownContactIsLow(t *testing.T) {
	g := NewGuard(persona.Profile{}, Policy{})

	v := g.Evaluate("hey", models.IncomingMessage{Text: "hi"}, models.Contact{Name: models.UnknownContactName})
	assert.True(t, v.Safe)
	assert.Equal(t, ActionAllow, v.Action)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, models.SeverityLow, v.Issues[0].Severity)

	v = g.Evaluate("hey", models.IncomingMessage{Text: "hi"}, models.Contact{Name: models.UnknownContactName, Known: true})
	assert.Empty(t, v.Issues)
}

func TestEvaluateCustomPolicy(t *testing.T) {
	g := NewGuard(persona.Profile{}, Policy{BlockAt: models.SeverityHigh, QueueAt: models.SeverityLow})

	v := g.Evaluate("my passwords", models.IncomingMessage{}, alice)
	assert.Equal(t, ActionBlock, v.Action)

	v = g.Evaluate("hey", models.IncomingMessage{}, models.Contact{Name: models.UnknownContactName})
	assert.Equal(t, ActionQueueForReview, v.Action)
}
