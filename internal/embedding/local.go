package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	defaultLocalDims = 128
	slotsPerTerm     = 3
	slotStride       = 37
)

// LocalEmbedder is a zero-cost TF-IDF embedding hashed into a small vector.
// It needs no network access and works before any API key is configured.
type LocalEmbedder struct {
	dims int

	mu       sync.RWMutex
	idf      map[string]float64
	docCount int
}

func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = defaultLocalDims
	}
	return &LocalEmbedder{dims: dims, idf: map[string]float64{}}
}

// BuildVocabulary computes inverse document frequencies over texts
func (e *LocalEmbedder) BuildVocabulary(texts []string) {
	docFreq := map[string]int{}
	for _, text := range texts {
		seen := map[string]bool{}
		for _, w := range tokenize(text) {
			if !seen[w] {
				seen[w] = true
				docFreq[w]++
			}
		}
	}

	idf := make(map[string]float64, len(docFreq))
	for w, freq := range docFreq {
		idf[w] = math.Log(float64(len(texts)) / float64(1+freq))
	}

	e.mu.Lock()
	e.idf = idf
	e.docCount = len(texts)
	e.mu.Unlock()
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	words := tokenize(text)
	vector := make(Vector, e.dims)
	if len(words) == 0 {
		return vector, nil
	}

	tf := map[string]int{}
	order := make([]string, 0, len(words))
	for _, w := range words {
		if tf[w] == 0 {
			order = append(order, w)
		}
		tf[w]++
	}

	e.mu.RLock()
	for _, w := range order {
		weight, ok := e.idf[w]
		if !ok {
			weight = 1
		}
		tfidf := float64(tf[w]) / float64(len(words)) * weight
		h := hashWord(w)
		for i := 0; i < slotsPerTerm; i++ {
			idx := (h + int64(i*slotStride)) % int64(e.dims)
			sign := 1.0
			if i%2 == 1 {
				sign = -1
			}
			vector[idx] += float32(tfidf * sign)
		}
	}
	e.mu.RUnlock()

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vector, nil
	}
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *LocalEmbedder) Dims() int { return e.dims }

func (e *LocalEmbedder) Name() string { return "local" }

type vocabularyFile struct {
	Dims     int                `json:"dims"`
	DocCount int                `json:"doc_count"`
	IDF      map[string]float64 `json:"idf"`
}

// SaveVocabulary writes the IDF table so another process embeds queries
// with the same weights that were used for indexing.
func (e *LocalEmbedder) SaveVocabulary(path string) error {
	e.mu.RLock()
	data, err := json.Marshal(vocabularyFile{Dims: e.dims, DocCount: e.docCount, IDF: e.idf})
	e.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vocabulary dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadVocabulary restores a table written by SaveVocabulary. A missing file
// leaves the embedder unchanged and reports false.
func (e *LocalEmbedder) LoadVocabulary(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read vocabulary: %w", err)
	}
	var vf vocabularyFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return false, fmt.Errorf("decode vocabulary %s: %w", path, err)
	}
	if vf.Dims != e.dims {
		return false, fmt.Errorf("vocabulary %s was built for %d dims, embedder has %d", path, vf.Dims, e.dims)
	}
	if vf.IDF == nil {
		vf.IDF = map[string]float64{}
	}

	e.mu.Lock()
	e.idf = vf.IDF
	e.docCount = vf.DocCount
	e.mu.Unlock()
	return true, nil
}

// VocabularySize reports how many distinct terms have IDF weights
func (e *LocalEmbedder) VocabularySize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.idf)
}

func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, strings.ToLower(text))

	var words []string
	for _, w := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(w) > 1 {
			words = append(words, w)
		}
	}
	return words
}

// hashWord is the classic 31-multiplier string hash over UTF-16 units
func hashWord(word string) int64 {
	var h int32
	for _, u := range utf16.Encode([]rune(word)) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
