// Package pipeline turns one inbound message into a decision: stay quiet,
// withhold the reply, or send it as a paced sequence of messages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/clone-bot/internal/brain"
	"github.com/xaenox/clone-bot/internal/conversation"
	"github.com/xaenox/clone-bot/internal/mimicry"
	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/persona"
	"github.com/xaenox/clone-bot/internal/rag"
	"github.com/xaenox/clone-bot/internal/safety"
	"go.uber.org/zap"
)

// ErrGenerationTimeout wraps a generation call that ran past its deadline
var ErrGenerationTimeout = errors.New("generation timed out")

const (
	DefaultGenerationTimeout = 60 * time.Second

	recallLimit = 5
	recentLimit = 8
)

// Retriever supplies past exchanges; failures are carried in the Recall value
type Retriever interface {
	Recall(ctx context.Context, query, contact string, topK int) rag.Recall
}

type Deps struct {
	Profile   persona.Profile
	Generator brain.Generator
	Retriever Retriever
	Tracker   *conversation.Tracker
	Guard     *safety.Guard
	Reviews   *safety.ReviewQueue
	Mimicry   *mimicry.Engine
	Logger    *zap.Logger

	// GenerationTimeout bounds each generation call. Zero means DefaultGenerationTimeout.
	GenerationTimeout time.Duration
}

type Orchestrator struct {
	Deps
	locks *keyLock
}

func New(deps Deps) *Orchestrator {
	if deps.GenerationTimeout <= 0 {
		deps.GenerationTimeout = DefaultGenerationTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{Deps: deps, locks: newKeyLock()}
}

// Process runs msg from contact through the pipeline. Calls for the same
// contact are serialized; different contacts run in parallel. Generation
// errors are returned as is and nothing is recorded for the message.
func (o *Orchestrator) Process(ctx context.Context, msg models.IncomingMessage, contact models.Contact) (models.Outcome, error) {
	name := contact.DisplayName()
	unlock := o.locks.Lock(name)
	defer unlock()

	if o.Mimicry.ShouldIgnore(msg) {
		return models.Outcome{Action: models.ActionIgnore}, nil
	}

	ragContext := o.recall(ctx, msg.Text, name)
	recent := conversation.FormatRecent(name, o.Tracker.Recent(name, recentLimit))

	prompt := brain.BuildSystemPrompt(o.Profile, contact, brain.PromptContext{
		RecentHistory: recent,
		RAGContext:    ragContext,
	})
	raw, err := o.generate(ctx, prompt, msg.Text)
	if err != nil {
		return models.Outcome{}, err
	}

	reply := safety.CleanAIReveal(raw)

	verdict := o.Guard.Evaluate(reply, msg, contact)
	switch verdict.Action {
	case safety.ActionDeflect:
		reply = verdict.DeflectMessage
	case safety.ActionBlock:
		o.Logger.Warn("Reply blocked by safety guard",
			zap.String("contact", name),
			zap.Int("issues", len(verdict.Issues)))
		return models.Outcome{Action: models.ActionBlocked, Issues: verdict.Issues}, nil
	case safety.ActionQueueForReview:
		item := o.Reviews.Add(ctx, name, msg.Text, reply, verdict.Issues)
		o.Logger.Info("Reply queued for review",
			zap.String("contact", name),
			zap.String("review_id", item.ID))
		return models.Outcome{Action: models.ActionQueued, Issues: verdict.Issues}, nil
	}

	replies := o.Mimicry.ProcessReply(o.Mimicry.Style(reply))
	if len(replies) == 0 {
		o.Logger.Info("Nothing left to send after cleanup", zap.String("contact", name))
		return models.Outcome{Action: models.ActionIgnore, Issues: verdict.Issues}, nil
	}

	joined := strings.Join(replies, " ")
	outcome := models.Outcome{
		Action:         models.ActionReply,
		Replies:        replies,
		Delay:          o.Mimicry.ReplyDelay(msg.Text, contact),
		TypingDuration: o.Mimicry.TypingDuration(joined),
		Issues:         verdict.Issues,
	}

	o.Tracker.Append(name, msg.Text, joined)
	return outcome, nil
}

// recall never fails; a broken or missing memory just means no context
func (o *Orchestrator) recall(ctx context.Context, query, contact string) string {
	if o.Retriever == nil {
		return ""
	}
	r := o.Retriever.Recall(ctx, query, contact, recallLimit)
	if r.Err != nil {
		o.Logger.Debug("Retrieval skipped", zap.Error(r.Err), zap.String("contact", contact))
		return ""
	}
	return rag.FormatContext(r.Memories)
}

func (o *Orchestrator) generate(ctx context.Context, systemPrompt, message string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.GenerationTimeout)
	defer cancel()

	reply, err := o.Generator.Chat(genCtx, systemPrompt, message)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() == nil && errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %w", ErrGenerationTimeout, o.GenerationTimeout, err)
	}
	return "", err
}
