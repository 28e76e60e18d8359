package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

// stubEmbedder maps texts to fixed vectors by keyword; texts containing
// "FAIL" cannot be embedded.
type stubEmbedder struct {
	vocab []string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("embedding failed")
	}
	v := make(embedding.Vector, len(s.vocab))
	lower := strings.ToLower(text)
	for i, w := range s.vocab {
		if strings.Contains(lower, w) {
			v[i] = 1
		}
	}
	return v, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dims() int    { return len(s.vocab) }
func (s *stubEmbedder) Name() string { return "stub" }

var history = []models.HistoryExchange{
	{Contact: "Alice", TheirMessage: "what time should we meet", YourReply: "7pm"},
	{Contact: "Bob", TheirMessage: "what time should we meet for football", YourReply: "8pm"},
	{Contact: "Bob", TheirMessage: "what time is the game", YourReply: "9pm"},
	{Contact: "Carol", TheirMessage: "send me the report", YourReply: "ok"},
	{Contact: "Alice", TheirMessage: "did you eat", YourReply: "yes"},
}

func newTestMemory(index Index) *Memory {
	emb := &stubEmbedder{vocab: []string{"what", "time", "meet", "football", "game", "report", "eat"}}
	return NewMemory(emb, index, zap.NewNop())
}

func TestIndexHistorySkipsFailures(t *testing.T) {
	m := newTestMemory(NewMemoryIndex())
	input := append([]models.HistoryExchange{}, history...)
	input = append(input, models.HistoryExchange{Contact: "Dan", TheirMessage: "FAIL", YourReply: "x"})

	n, err := m.IndexHistory(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, len(history), n)

	stats, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(history), stats.TotalMemories)
	assert.Equal(t, "stub", stats.Embedder)
}

func TestFindRelevantBoostsContact(t *testing.T) {
	index := NewMemoryIndex()
	m := newTestMemory(index)
	_, err := m.IndexHistory(context.Background(), history)
	require.NoError(t, err)

	const query = "what time should we meet"
	got, err := m.FindRelevant(context.Background(), query, "Alice", 3)
	require.NoError(t, err)
	require.LessOrEqual(t, len(got), 3)
	require.NotEmpty(t, got)

	qv, _ := m.embedder.Embed(context.Background(), query)
	raw, err := index.Query(context.Background(), qv, len(history))
	require.NoError(t, err)

	adjusted := map[string]float64{}
	for _, r := range raw {
		score := r.Score
		if r.Record.Contact == "Alice" {
			score += ContactBoost
		}
		adjusted[r.Record.ID] = score
	}

	returned := map[string]bool{}
	for _, mem := range got {
		returned[mem.Record.ID] = true
		assert.InDelta(t, adjusted[mem.Record.ID], mem.Score, 1e-9)
		if mem.Record.Contact == "Alice" {
			rawScore := embedding.CosineSimilarity(qv, mem.Record.Vector)
			assert.InDelta(t, rawScore+0.2, mem.Score, 1e-9)
		}
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	// Candidates are the 2k raw nearest; none left out may beat a returned one.
	candidates := raw[:min(6, len(raw))]
	lowest := got[len(got)-1].Score
	for _, c := range candidates {
		if !returned[c.Record.ID] {
			assert.LessOrEqual(t, adjusted[c.Record.ID], lowest)
		}
	}

	assert.Equal(t, "Alice", got[0].Record.Contact)
	assert.Equal(t, "7pm", got[0].Record.YourReply)
}

func TestRecallIsOptional(t *testing.T) {
	m := newTestMemory(NewMemoryIndex())

	r := m.Recall(context.Background(), "what time", "Alice", 5)
	assert.NoError(t, r.Err)
	assert.Empty(t, r.Memories)

	r = m.Recall(context.Background(), "FAIL", "Alice", 5)
	assert.Error(t, r.Err)
	assert.Empty(t, r.Memories)
}

func TestFormatContext(t *testing.T) {
	assert.Empty(t, FormatContext(nil))
	out := FormatContext([]models.Memory{
		{Record: models.MemoryRecord{Text: "Alice: hi\nYou: yo"}},
		{Record: models.MemoryRecord{Text: "Bob: sup\nYou: nm"}},
	})
	assert.Equal(t, "[Memory 1] Alice: hi\nYou: yo\n\n[Memory 2] Bob: sup\nYou: nm", out)
}

func TestSQLiteIndexLazyCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memory-index")
	index := NewSQLiteIndex(dir, zap.NewNop())
	defer index.Close()

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	m := newTestMemory(index)
	n, err := m.IndexHistory(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, len(history), n)

	_, err = os.Stat(filepath.Join(dir, indexFile))
	require.NoError(t, err)

	got, err := m.FindRelevant(context.Background(), "send the report", "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Carol", got[0].Record.Contact)
	assert.Len(t, got[0].Record.Vector, 7)

	count, err := index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(history), count)
}

func TestVectorCodec(t *testing.T) {
	v := embedding.Vector{0.5, -1.25, 0, 3}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
