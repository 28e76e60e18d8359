package persona

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soul = `# SOUL

## Identity
- Name: Minh
- Language: Vietnamese
- Average message length: 18 chars
- Emoji frequency: high

## Style
- Catchphrases: haha, ok nha
- Abbreviations: ko, dc
- Average response time: 45s
- Online hours: 9-22
- Typo rate: 0.05
- Capitalization: lowercase

## Boundaries
- Deflect topics: Politics, religion
- When unsure: Say "để t check lại"
- Never share: salary, bank account
`

func TestParse(t *testing.T) {
	p := Parse(soul)

	assert.Equal(t, "Minh", p.Name)
	assert.Equal(t, "Vietnamese", p.Language)
	assert.Equal(t, 18, p.AvgMessageLengthNum)
	assert.Equal(t, "haha, ok nha", p.Catchphrases)
	assert.Equal(t, "để t check lại", p.UnsureFallback)
	assert.Equal(t, 45*time.Second, p.ResponseTimeAvg)
	assert.Equal(t, 9, p.OnlineHoursStart)
	assert.Equal(t, 22, p.OnlineHoursEnd)
	assert.InDelta(t, 0.05, p.TypoRate, 1e-9)
	assert.Equal(t, "lowercase", p.Capitalization)
	assert.Equal(t, []string{"politics", "religion"}, p.AvoidTopicList())
	assert.Equal(t, []string{"salary", "bank account"}, p.NeverShareTopics())
}

func TestParseDefaults(t *testing.T) {
	p := Parse("just some notes")

	assert.Empty(t, p.Name)
	assert.Equal(t, 8, p.OnlineHoursStart)
	assert.Equal(t, 23, p.OnlineHoursEnd)
	assert.InDelta(t, 0.02, p.TypoRate, 1e-9)
	assert.Nil(t, p.AvoidTopicList())
	assert.Equal(t, []string{"personal finances", "health info", "passwords"}, p.NeverShareTopics())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrNoSoul)

	require.NoError(t, os.WriteFile(filepath.Join(dir, SoulFile), []byte(soul), 0o644))
	p, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Minh", p.Name)
	assert.Equal(t, soul, p.RawContent)
}
