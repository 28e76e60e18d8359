package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	return OpenPostgres(config.DSN(), logger)
}

// OpenPostgres connects with a raw DSN and applies the schema
func OpenPostgres(dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("PostgreSQL storage ready")
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

const reviewColumns = `id, created_at, status, contact, message, reply, issues, edited_reply, reviewed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReview(row rowScanner) (models.ReviewItem, error) {
	var (
		item       models.ReviewItem
		issuesJSON []byte
		reviewedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID,
		&item.Timestamp,
		&item.Status,
		&item.Contact,
		&item.Message,
		&item.Reply,
		&issuesJSON,
		&item.EditedReply,
		&reviewedAt,
	)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(issuesJSON, &item.Issues); err != nil {
		return item, fmt.Errorf("%w: review item %s issues: %v", ErrCorrupt, item.ID, err)
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		item.ReviewedAt = &t
	}
	return item, nil
}

func (s *PostgresStorage) LoadReviews(ctx context.Context) ([]models.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_items ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying review items: %w", err)
	}
	defer rows.Close()

	items := []models.ReviewItem{}
	for rows.Next() {
		item, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning review item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (s *PostgresStorage) AddReview(ctx context.Context, item models.ReviewItem) error {
	issues := item.Issues
	if issues == nil {
		issues = []models.SafetyIssue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("error encoding issues for %s: %w", item.ID, err)
	}

	query := `
		INSERT INTO review_items (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		item.Timestamp,
		models.ReviewPending,
		item.Contact,
		item.Message,
		item.Reply,
		issuesJSON,
		item.EditedReply,
	)
	if err != nil {
		return fmt.Errorf("error saving review item %s: %w", item.ID, err)
	}
	return nil
}

// ResolveReview only touches rows that are still pending, so two processes
// cannot both resolve the same item.
func (s *PostgresStorage) ResolveReview(ctx context.Context, id string, status models.ReviewStatus, editedReply string, at time.Time) (models.ReviewItem, error) {
	query := `
		UPDATE review_items
		SET status = $2, edited_reply = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + reviewColumns

	item, err := scanReview(s.db.QueryRowContext(ctx, query, id, status, editedReply, at))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ReviewItem{}, fmt.Errorf("error resolving review item %s: %w", id, err)
	}

	current, err := scanReview(s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM review_items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewItem{}, fmt.Errorf("%w: %s", ErrReviewNotFound, id)
	}
	if err != nil {
		return models.ReviewItem{}, fmt.Errorf("error loading review item %s: %w", id, err)
	}
	return current, fmt.Errorf("%w: %s is %s", ErrAlreadyReviewed, id, current.Status)
}

func (s *PostgresStorage) LoadHeartbeat(ctx context.Context) (*models.Heartbeat, error) {
	query := `SELECT online, ghost_mode, ts, last_seen FROM presence WHERE id = 1`

	var hb models.Heartbeat
	err := s.db.QueryRowContext(ctx, query).Scan(&hb.Online, &hb.GhostMode, &hb.Timestamp, &hb.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading heartbeat: %w", err)
	}
	return &hb, nil
}

func (s *PostgresStorage) SaveHeartbeat(ctx context.Context, hb *models.Heartbeat) error {
	query := `
		INSERT INTO presence (id, online, ghost_mode, ts, last_seen)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET online = EXCLUDED.online,
		    ghost_mode = EXCLUDED.ghost_mode,
		    ts = EXCLUDED.ts,
		    last_seen = EXCLUDED.last_seen`

	if _, err := s.db.ExecContext(ctx, query, hb.Online, hb.GhostMode, hb.Timestamp, hb.LastSeen); err != nil {
		return fmt.Errorf("error saving heartbeat: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
