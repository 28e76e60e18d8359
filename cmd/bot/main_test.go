package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/persona"
	"github.com/xaenox/clone-bot/internal/storage"
	"github.com/xaenox/clone-bot/pkg/config"
	"go.uber.org/zap"
)

func runCLI(t *testing.T, dataDir string, args ...string) error {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "TELEGRAM_TOKEN", "MATRIX_ACCESS_TOKEN", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "DEEPSEEK_API_KEY", "LLM_PROVIDER"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATA_DIR", dataDir)

	root := newRootCmd(zap.NewNop())
	root.SetArgs(append(args, "--config", filepath.Join(dataDir, "absent.yaml")))
	return root.ExecuteContext(context.Background())
}

func TestGhostCommands(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, runCLI(t, dir, "ghost", "on"))

	data, err := os.ReadFile(filepath.Join(dir, storage.HeartbeatFile))
	require.NoError(t, err)
	var hb models.Heartbeat
	require.NoError(t, json.Unmarshal(data, &hb))
	assert.True(t, hb.GhostMode)
	assert.False(t, hb.Online)

	require.NoError(t, runCLI(t, dir, "ghost", "off"))
	data, err = os.ReadFile(filepath.Join(dir, storage.HeartbeatFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &hb))
	assert.False(t, hb.GhostMode)
	assert.True(t, hb.Online)
}

func TestReviewCommands(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewFileStorage(dir)
	require.NoError(t, store.AddReview(context.Background(), models.ReviewItem{
		ID:        "01J0000000000000000000000A",
		Timestamp: time.Now(),
		Status:    models.ReviewPending,
		Contact:   "Lan",
		Message:   "what's your salary?",
		Reply:     "around 2k",
	}))

	require.NoError(t, runCLI(t, dir, "review", "list"))
	require.NoError(t, runCLI(t, dir, "review", "reject", "01J0000000000000000000000A", "--edit", "enough lol"))

	items, err := store.LoadReviews(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ReviewRejected, items[0].Status)
	assert.Equal(t, "enough lol", items[0].EditedReply)

	assert.Error(t, runCLI(t, dir, "review", "approve", "01J0000000000000000000000A"))
	assert.Error(t, runCLI(t, dir, "review", "approve", "missing"))
}

func TestIndexAndMemoryStats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exchanges.json")
	history := `[
		{"contact": "Lan", "their_message": "đi ăn không", "your_reply": "ok 7h nha"},
		{"contact": "Minh", "their_message": "deadline thứ 6 hả", "your_reply": "ừ thứ 6"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(history), 0o600))

	require.NoError(t, runCLI(t, dir, "index", path))
	require.NoError(t, runCLI(t, dir, "memory", "stats"))

	_, err := os.Stat(filepath.Join(dir, "memory-index"))
	assert.NoError(t, err)

	// the serving process must weigh query terms like the indexer did
	_, err = os.Stat(filepath.Join(dir, "memory-index", "vocabulary.json"))
	require.NoError(t, err)
	e := &env{logger: zap.NewNop(), cfg: &config.Config{DataDir: dir, Embedding: config.EmbeddingConfig{Provider: "local"}, Memory: config.MemoryConfig{Index: "memory"}}}
	memory, index, err := e.openMemory()
	require.NoError(t, err)
	defer index.Close()
	local, ok := memory.Embedder().(*embedding.LocalEmbedder)
	require.True(t, ok)
	assert.Positive(t, local.VocabularySize())
	assert.Equal(t, 128, local.Dims())
}

func TestStartWithoutSoul(t *testing.T) {
	err := runCLI(t, t.TempDir(), "start")
	assert.ErrorIs(t, err, persona.ErrNoSoul)
}

func TestMimicrySettingsOverrides(t *testing.T) {
	profile := persona.Profile{
		ResponseTimeAvg:     90 * time.Second,
		OnlineHoursStart:    8,
		OnlineHoursEnd:      23,
		TypoRate:            0.02,
		Capitalization:      "Normal",
		AvgMessageLengthNum: 40,
	}

	s := mimicrySettings(profile, &config.Config{})
	assert.Equal(t, 90*time.Second, s.Baseline)
	assert.Equal(t, 8, s.OnlineHoursStart)
	assert.Equal(t, "Normal", s.Capitalization)

	s = mimicrySettings(profile, &config.Config{
		Mimicry: config.MimicryConfig{OnlineHoursStart: 22, OnlineHoursEnd: 2, TypoRate: 0.05},
		Style:   config.StyleConfig{Capitalization: "lowercase"},
	})
	assert.Equal(t, 22, s.OnlineHoursStart)
	assert.Equal(t, 2, s.OnlineHoursEnd)
	assert.Equal(t, 0.05, s.TypoRate)
	assert.Equal(t, "lowercase", s.Capitalization)
	assert.Equal(t, 40, s.AvgMessageLength)
}
