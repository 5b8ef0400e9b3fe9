package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLite is a single-file Store.
type SQLite struct {
	db *sql.DB
}

// DefaultSQLitePath returns ~/.vidq/vidq.db.
func DefaultSQLitePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vidq", "vidq.db")
}

// OpenSQLite opens or creates the database at path with WAL enabled and
// applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Retrieve implements Retriever. Queries are ranked in process.
func (s *SQLite) Retrieve(ctx context.Context, query string, k int, filter Filter) ([]transcript.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, chunk_order, text, start_sec, end_sec
		FROM video_chunks
		WHERE (? = '' OR video_id = ?)
		ORDER BY video_id, chunk_order`,
		filter.VideoID, filter.VideoID)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []transcript.Chunk
	for rows.Next() {
		var c transcript.Chunk
		var start, end sql.NullFloat64
		if err := rows.Scan(&c.VideoID, &c.Order, &c.Text, &start, &end); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if start.Valid {
			c.StartSec = transcript.Seconds(start.Float64)
		}
		if end.Valid {
			c.EndSec = transcript.Seconds(end.Float64)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(chunks, query, k), nil
}

// Metadata implements MetadataSource.
func (s *SQLite) Metadata(ctx context.Context, videoID string) (*transcript.VideoMetadata, error) {
	var m transcript.VideoMetadata
	var published, tags string
	err := s.db.QueryRowContext(ctx, `
		SELECT video_id, title, channel, description, duration_sec, published_at,
		       view_count, like_count, tags
		FROM video_metadata WHERE video_id = ?`, videoID).
		Scan(&m.VideoID, &m.Title, &m.Channel, &m.Description, &m.DurationSec, &published,
			&m.ViewCount, &m.LikeCount, &tags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	if published != "" {
		if t, err := time.Parse(time.RFC3339Nano, published); err == nil {
			m.PublishedAt = t
		}
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &m, nil
}

// PutChunks implements Writer.
func (s *SQLite) PutChunks(ctx context.Context, videoID string, chunks []transcript.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // nolint: errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM video_chunks WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO video_chunks (video_id, chunk_order, text, start_sec, end_sec)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range normalizeChunks(videoID, chunks) {
		if _, err := stmt.ExecContext(ctx, c.VideoID, c.Order, c.Text, nullable(c.StartSec), nullable(c.EndSec)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Order, err)
		}
	}
	return tx.Commit()
}

// PutMetadata implements Writer.
func (s *SQLite) PutMetadata(ctx context.Context, meta *transcript.VideoMetadata) error {
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	published := ""
	if !meta.PublishedAt.IsZero() {
		published = meta.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO video_metadata
			(video_id, title, channel, description, duration_sec, published_at, view_count, like_count, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_id) DO UPDATE SET
			title = excluded.title,
			channel = excluded.channel,
			description = excluded.description,
			duration_sec = excluded.duration_sec,
			published_at = excluded.published_at,
			view_count = excluded.view_count,
			like_count = excluded.like_count,
			tags = excluded.tags`,
		meta.VideoID, meta.Title, meta.Channel, meta.Description, meta.DurationSec, published,
		meta.ViewCount, meta.LikeCount, string(tagJSON))
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// Videos implements Store.
func (s *SQLite) Videos(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT video_id FROM video_chunks ORDER BY video_id`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
