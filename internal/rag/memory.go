// Package rag is the retrieval memory: past exchanges indexed by embedding
// and recalled by semantic similarity.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

const (
	// ContactBoost is added to the similarity of memories with the same contact
	ContactBoost = 0.2
	indexBatch   = 20
)

// Memory indexes and recalls past exchanges
type Memory struct {
	embedder embedding.Embedder
	index    Index
	logger   *zap.Logger
	now      func() time.Time
}

func NewMemory(embedder embedding.Embedder, index Index, logger *zap.Logger) *Memory {
	return &Memory{
		embedder: embedder,
		index:    index,
		logger:   logger,
		now:      time.Now,
	}
}

func (m *Memory) Embedder() embedding.Embedder { return m.embedder }

func exchangeText(ex models.HistoryExchange) string {
	contact := ex.Contact
	if contact == "" {
		contact = "Someone"
	}
	return fmt.Sprintf("%s: %s\nYou: %s", contact, ex.TheirMessage, ex.YourReply)
}

// IndexHistory embeds and stores exchanges. Items that fail to embed or
// insert are skipped; the number stored is returned.
func (m *Memory) IndexHistory(ctx context.Context, exchanges []models.HistoryExchange) (int, error) {
	texts := make([]string, len(exchanges))
	for i, ex := range exchanges {
		texts[i] = exchangeText(ex)
	}

	if vb, ok := m.embedder.(embedding.VocabularyBuilder); ok {
		vb.BuildVocabulary(texts)
	}

	indexed := 0
	for start := 0; start < len(exchanges); start += indexBatch {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		end := min(start+indexBatch, len(exchanges))

		vectors := m.embedBatch(ctx, texts[start:end])
		for i := start; i < end; i++ {
			vec := vectors[i-start]
			if vec == nil {
				continue
			}
			ex := exchanges[i]
			contact := ex.Contact
			if contact == "" {
				contact = models.UnknownContactName
			}
			rec := models.MemoryRecord{
				ID:           uuid.New().String(),
				Vector:       vec,
				Contact:      contact,
				Date:         ex.Date,
				TheirMessage: ex.TheirMessage,
				YourReply:    ex.YourReply,
				Text:         texts[i],
				CreatedAt:    m.now(),
			}
			if err := m.index.Insert(ctx, rec); err != nil {
				m.logger.Debug("Skipping memory record", zap.Error(err), zap.Int("position", i))
				continue
			}
			indexed++
		}
	}

	m.logger.Info("Indexed conversation history",
		zap.Int("indexed", indexed),
		zap.Int("total", len(exchanges)),
		zap.String("embedder", m.embedder.Name()))
	return indexed, nil
}

// embedBatch tries one request per batch, then falls back to single items so
// one bad text does not drop its neighbours. Failed slots are nil.
func (m *Memory) embedBatch(ctx context.Context, texts []string) []embedding.Vector {
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors
	}

	vectors = make([]embedding.Vector, len(texts))
	for i, t := range texts {
		v, err := m.embedder.Embed(ctx, t)
		if err != nil {
			m.logger.Debug("Skipping exchange that failed to embed", zap.Error(err))
			continue
		}
		vectors[i] = v
	}
	return vectors
}

// FindRelevant returns up to topK memories for query, boosting those that
// came from the same contact.
func (m *Memory) FindRelevant(ctx context.Context, query, contact string, topK int) ([]models.Memory, error) {
	if topK <= 0 {
		return nil, nil
	}

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := m.index.Query(ctx, vector, topK*2)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	scored := make([]models.Memory, 0, len(matches))
	for _, match := range matches {
		score := match.Score
		if contact != "" && match.Record.Contact == contact {
			score += ContactBoost
		}
		scored = append(scored, models.Memory{Record: match.Record, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Recall is the result of an optional retrieval. Err is informational only:
// callers use Memories regardless, which is empty when Err is set.
type Recall struct {
	Memories []models.Memory
	Err      error
}

// Recall wraps FindRelevant for callers that treat retrieval as optional
func (m *Memory) Recall(ctx context.Context, query, contact string, topK int) Recall {
	memories, err := m.FindRelevant(ctx, query, contact, topK)
	if err != nil {
		return Recall{Err: err}
	}
	return Recall{Memories: memories}
}

// FormatContext renders memories for the generation prompt
func FormatContext(memories []models.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	parts := make([]string, len(memories))
	for i, mem := range memories {
		parts[i] = fmt.Sprintf("[Memory %d] %s", i+1, mem.Record.Text)
	}
	return strings.Join(parts, "\n\n")
}

type Stats struct {
	TotalMemories int    `json:"total_memories"`
	Embedder      string `json:"embedder"`
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	n, err := m.index.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalMemories: n, Embedder: m.embedder.Name()}, nil
}

// ErrNoMemory is returned by callers that require retrieval to be configured
var ErrNoMemory = errors.New("retrieval memory is not configured")
