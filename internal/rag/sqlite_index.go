package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const indexFile = "index.db"

// SQLiteIndex stores vectors as little-endian float32 blobs and scores them
// by brute-force cosine similarity. The directory and database are created
// on first use.
type SQLiteIndex struct {
	dir    string
	logger *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteIndex(dir string, logger *zap.Logger) *SQLiteIndex {
	return &SQLiteIndex{dir: dir, logger: logger}
}

func (s *SQLiteIndex) open() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := filepath.Join(s.dir, indexFile)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS memory_records (
		id            TEXT PRIMARY KEY,
		contact       TEXT NOT NULL,
		date          TEXT NOT NULL DEFAULT '',
		their_message TEXT NOT NULL,
		your_reply    TEXT NOT NULL,
		text          TEXT NOT NULL,
		created_at    TEXT NOT NULL,
		vector        BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memory_records_contact ON memory_records(contact);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}

	s.logger.Info("Vector index opened", zap.String("path", path))
	s.db = db
	return db, nil
}

func (s *SQLiteIndex) Insert(ctx context.Context, rec models.MemoryRecord) error {
	db, err := s.open()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO memory_records (id, contact, date, their_message, your_reply, text, created_at, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Contact, rec.Date, rec.TheirMessage, rec.YourReply, rec.Text,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), encodeVector(rec.Vector),
	)
	if err != nil {
		return fmt.Errorf("insert memory record: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Query(ctx context.Context, vector embedding.Vector, k int) ([]Match, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, contact, date, their_message, your_reply, text, created_at, vector FROM memory_records`)
	if err != nil {
		return nil, fmt.Errorf("query memory records: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			rec       models.MemoryRecord
			createdAt string
			blob      []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Contact, &rec.Date, &rec.TheirMessage, &rec.YourReply, &rec.Text, &createdAt, &blob); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.Vector = decodeVector(blob)
		matches = append(matches, Match{Score: embedding.CosineSimilarity(vector, rec.Vector), Record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return topK(matches, k), nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	db, err := s.open()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memory records: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func encodeVector(v embedding.Vector) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) embedding.Vector {
	v := make(embedding.Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
