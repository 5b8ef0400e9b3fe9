// Package history records answered questions to Postgres so they can be
// listed later with `vidq history`.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"
)

// Entry is one answered question.
type Entry struct {
	ID         int64     `json:"id"`
	AnswerID   string    `json:"answer_id"`
	VideoID    string    `json:"video_id,omitempty"`
	Query      string    `json:"query"`
	Intent     string    `json:"intent"`
	Rule       string    `json:"rule,omitempty"`
	TimeRange  string    `json:"time_range,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	Chunks     int       `json:"chunks"`
	Outcome    string    `json:"outcome"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMs int       `json:"duration_ms"`
	KeyPoints  []string  `json:"key_points,omitempty"`
	Hostname   string    `json:"hostname,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recorder accepts history entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Config configures history recording.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	BufferSize    int           `yaml:"buffer_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultConfig returns history defaults. Recording is off until a URL is set.
func DefaultConfig() Config {
	return Config{
		BufferSize:    256,
		BatchSize:     32,
		FlushInterval: 2 * time.Second,
	}
}

// IsConfigured reports whether history has somewhere to go.
func (c Config) IsConfigured() bool {
	return c.Enabled && c.URL != ""
}

const schema = `
CREATE TABLE IF NOT EXISTS vidq_query_history (
	id          BIGSERIAL PRIMARY KEY,
	answer_id   TEXT NOT NULL,
	video_id    TEXT,
	query       TEXT NOT NULL,
	intent      TEXT NOT NULL,
	rule        TEXT,
	time_range  TEXT,
	topic       TEXT,
	chunks      INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT NOT NULL,
	error_code  TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	key_points  TEXT[],
	hostname    TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS vidq_query_history_video_idx ON vidq_query_history (video_id, created_at DESC);
`

// Store reads and writes history rows.
type Store struct {
	db       *sql.DB
	hostname string
}

// Open connects to Postgres and creates the history table if needed.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	hostname, _ := os.Hostname()
	return &Store{db: db, hostname: hostname}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes a single entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	return s.WriteBatch(ctx, []Entry{e})
}

// WriteBatch writes entries in one COPY.
func (s *Store) WriteBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("vidq_query_history",
		"answer_id", "video_id", "query", "intent", "rule", "time_range", "topic",
		"chunks", "outcome", "error_code", "duration_ms", "key_points", "hostname", "created_at",
	))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}

	for _, e := range entries {
		hostname := e.Hostname
		if hostname == "" {
			hostname = s.hostname
		}
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			e.AnswerID,
			nullIfEmpty(e.VideoID),
			truncate(e.Query, 2000),
			e.Intent,
			nullIfEmpty(e.Rule),
			nullIfEmpty(e.TimeRange),
			nullIfEmpty(e.Topic),
			e.Chunks,
			e.Outcome,
			nullIfEmpty(e.ErrorCode),
			e.DurationMs,
			pq.Array(e.KeyPoints),
			nullIfEmpty(hostname),
			created,
		); err != nil {
			stmt.Close()
			return fmt.Errorf("copying entry: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flushing copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("closing copy: %w", err)
	}
	return tx.Commit()
}

// Recent returns the latest entries, newest first. An empty videoID lists
// all videos.
func (s *Store) Recent(ctx context.Context, videoID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, answer_id, COALESCE(video_id, ''), query, intent, COALESCE(rule, ''),
		       COALESCE(time_range, ''), COALESCE(topic, ''), chunks, outcome,
		       COALESCE(error_code, ''), duration_ms, key_points, COALESCE(hostname, ''), created_at
		FROM vidq_query_history
		WHERE $1::text = '' OR video_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.AnswerID, &e.VideoID, &e.Query, &e.Intent, &e.Rule,
			&e.TimeRange, &e.Topic, &e.Chunks, &e.Outcome,
			&e.ErrorCode, &e.DurationMs, pq.Array(&e.KeyPoints), &e.Hostname, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return entries, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
