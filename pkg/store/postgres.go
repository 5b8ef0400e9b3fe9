package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/vidq/pkg/db"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the Postgres schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Postgres is a Store backed by PostgreSQL. Queries are ranked with the
// built-in English full-text search.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, applies migrations and returns the store.
func OpenPostgres(ctx context.Context, cfg *db.Config) (*Postgres, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(ctx, pool, Migrations()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Pool returns the underlying pool, for health checks and metrics.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Retrieve implements Retriever.
func (p *Postgres) Retrieve(ctx context.Context, query string, k int, filter Filter) ([]transcript.Chunk, error) {
	var rows pgx.Rows
	var err error
	if strings.TrimSpace(query) == "" {
		rows, err = p.pool.Query(ctx, `
			SELECT video_id, chunk_order, text, start_sec, end_sec
			FROM video_chunks
			WHERE ($1::text = '' OR video_id = $1)
			ORDER BY video_id, chunk_order
			LIMIT NULLIF($2::int, 0)`,
			filter.VideoID, k)
	} else {
		rows, err = p.pool.Query(ctx, `
			SELECT video_id, chunk_order, text, start_sec, end_sec
			FROM video_chunks, plainto_tsquery('english', $2) q
			WHERE ($1::text = '' OR video_id = $1) AND tsv @@ q
			ORDER BY ts_rank(tsv, q) DESC, video_id, chunk_order
			LIMIT NULLIF($3::int, 0)`,
			filter.VideoID, query, k)
	}
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []transcript.Chunk{}
	for rows.Next() {
		var c transcript.Chunk
		if err := rows.Scan(&c.VideoID, &c.Order, &c.Text, &c.StartSec, &c.EndSec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Metadata implements MetadataSource.
func (p *Postgres) Metadata(ctx context.Context, videoID string) (*transcript.VideoMetadata, error) {
	var m transcript.VideoMetadata
	var published *time.Time
	err := p.pool.QueryRow(ctx, `
		SELECT video_id, title, channel, description, duration_sec, published_at,
		       view_count, like_count, tags
		FROM video_metadata
		WHERE video_id = $1`, videoID).
		Scan(&m.VideoID, &m.Title, &m.Channel, &m.Description, &m.DurationSec, &published,
			&m.ViewCount, &m.LikeCount, &m.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	if published != nil {
		m.PublishedAt = published.UTC()
	}
	return &m, nil
}

// PutChunks implements Writer.
func (p *Postgres) PutChunks(ctx context.Context, videoID string, chunks []transcript.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM video_chunks WHERE video_id = $1`, videoID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	rows := make([][]interface{}, 0, len(chunks))
	for _, c := range normalizeChunks(videoID, chunks) {
		rows = append(rows, []interface{}{c.VideoID, c.Order, c.Text, c.StartSec, c.EndSec})
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"video_chunks"},
			[]string{"video_id", "chunk_order", "text", "start_sec", "end_sec"},
			pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy chunks: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// PutMetadata implements Writer.
func (p *Postgres) PutMetadata(ctx context.Context, meta *transcript.VideoMetadata) error {
	var published *time.Time
	if !meta.PublishedAt.IsZero() {
		published = &meta.PublishedAt
	}
	tags := meta.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO video_metadata
			(video_id, title, channel, description, duration_sec, published_at, view_count, like_count, tags, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title,
			channel = EXCLUDED.channel,
			description = EXCLUDED.description,
			duration_sec = EXCLUDED.duration_sec,
			published_at = EXCLUDED.published_at,
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			tags = EXCLUDED.tags,
			updated_at = NOW()`,
		meta.VideoID, meta.Title, meta.Channel, meta.Description, meta.DurationSec, published,
		meta.ViewCount, meta.LikeCount, tags)
	if err != nil {
		return fmt.Errorf("upsert metadata: %w", err)
	}
	return nil
}

// Videos implements Store.
func (p *Postgres) Videos(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT video_id FROM video_chunks ORDER BY video_id`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan videos: %w", err)
	}
	return ids, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
