package conversation

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xaenox/clone-bot/internal/models"
)

const (
	MemoryLogFile = "memory.md"
	logHeader     = "# Conversation Memory\n\nAuto-generated log of clone conversations.\n"
)

// MarkdownLog appends exchanges to a human-readable memory.md
type MarkdownLog struct {
	mu   sync.Mutex
	path string
}

func NewMarkdownLog(dataDir string) *MarkdownLog {
	return &MarkdownLog{path: filepath.Join(dataDir, MemoryLogFile)}
}

func (l *MarkdownLog) Path() string { return l.path }

func (l *MarkdownLog) Append(contact string, ex models.Exchange) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	_, statErr := os.Stat(l.path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", MemoryLogFile, err)
	}
	defer f.Close()

	var b strings.Builder
	if isNew {
		b.WriteString(logHeader)
	}
	fmt.Fprintf(&b, "\n## %s — %s\n- **Them:** %s\n- **Clone:** %s\n",
		ex.Timestamp.UTC().Format("2006-01-02 15:04"), contact, ex.Them, ex.Clone)

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", MemoryLogFile, err)
	}
	return nil
}

// Summary describes the long-term log
type Summary struct {
	File           string `json:"file"`
	TotalExchanges int    `json:"total_exchanges"`
	SizeBytes      int64  `json:"size_bytes"`
}

// Summary counts logged exchanges. It returns nil when no log exists yet.
func (l *MarkdownLog) Summary() (*Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	s := &Summary{File: l.path, SizeBytes: info.Size()}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "## ") {
			s.TotalExchanges++
		}
	}
	return s, scanner.Err()
}
