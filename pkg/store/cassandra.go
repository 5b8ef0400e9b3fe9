package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// Cassandra is a Store backed by a Cassandra keyspace. Chunks are
// partitioned by video and clustered by order.
type Cassandra struct {
	session *gocql.Session
}

var cassandraSchema = []string{
	`CREATE TABLE IF NOT EXISTS video_chunks (
		video_id text,
		chunk_order int,
		text text,
		start_sec double,
		end_sec double,
		PRIMARY KEY (video_id, chunk_order)
	) WITH CLUSTERING ORDER BY (chunk_order ASC)`,
	`CREATE TABLE IF NOT EXISTS video_metadata (
		video_id text PRIMARY KEY,
		title text,
		channel text,
		description text,
		duration_sec int,
		published_at timestamp,
		view_count bigint,
		like_count bigint,
		tags list<text>
	)`,
}

// OpenCassandra connects to the cluster and creates the tables when missing.
// The keyspace must already exist.
func OpenCassandra(ctx context.Context, cfg CassandraConfig) (*Cassandra, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("cassandra: no hosts configured")
	}
	if cfg.Keyspace == "" {
		cfg.Keyspace = "vidq"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	for _, stmt := range cassandraSchema {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &Cassandra{session: session}, nil
}

func parseConsistency(s string) gocql.Consistency {
	switch strings.ToLower(s) {
	case "one":
		return gocql.One
	case "local_quorum":
		return gocql.LocalQuorum
	case "all":
		return gocql.All
	case "local_one":
		return gocql.LocalOne
	default:
		return gocql.Quorum
	}
}

// Retrieve implements Retriever. Without a video filter it scans every
// partition, which is only sensible for small archives.
func (c *Cassandra) Retrieve(ctx context.Context, query string, k int, filter Filter) ([]transcript.Chunk, error) {
	var q *gocql.Query
	if filter.VideoID != "" {
		q = c.session.Query(`
			SELECT video_id, chunk_order, text, start_sec, end_sec
			FROM video_chunks WHERE video_id = ?`, filter.VideoID)
	} else {
		q = c.session.Query(`SELECT video_id, chunk_order, text, start_sec, end_sec FROM video_chunks`)
	}
	iter := q.WithContext(ctx).Iter()

	var chunks []transcript.Chunk
	var ch transcript.Chunk
	for iter.Scan(&ch.VideoID, &ch.Order, &ch.Text, &ch.StartSec, &ch.EndSec) {
		chunks = append(chunks, ch)
		ch = transcript.Chunk{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("error fetching chunks: %w", err)
	}
	return rank(chunks, query, k), nil
}

// Metadata implements MetadataSource.
func (c *Cassandra) Metadata(ctx context.Context, videoID string) (*transcript.VideoMetadata, error) {
	var m transcript.VideoMetadata
	err := c.session.Query(`
		SELECT video_id, title, channel, description, duration_sec, published_at,
		       view_count, like_count, tags
		FROM video_metadata WHERE video_id = ?`, videoID).
		WithContext(ctx).
		Scan(&m.VideoID, &m.Title, &m.Channel, &m.Description, &m.DurationSec, &m.PublishedAt,
			&m.ViewCount, &m.LikeCount, &m.Tags)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, notFound(videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	if !m.PublishedAt.IsZero() {
		m.PublishedAt = m.PublishedAt.UTC()
	}
	return &m, nil
}

// PutChunks implements Writer. The partition delete and inserts go in one
// logged batch.
func (c *Cassandra) PutChunks(ctx context.Context, videoID string, chunks []transcript.Chunk) error {
	batch := c.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM video_chunks WHERE video_id = ?`, videoID)
	for _, ch := range normalizeChunks(videoID, chunks) {
		batch.Query(`
			INSERT INTO video_chunks (video_id, chunk_order, text, start_sec, end_sec)
			VALUES (?, ?, ?, ?, ?)`,
			ch.VideoID, ch.Order, ch.Text, ch.StartSec, ch.EndSec)
	}
	if err := c.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	return nil
}

// PutMetadata implements Writer.
func (c *Cassandra) PutMetadata(ctx context.Context, meta *transcript.VideoMetadata) error {
	var published interface{}
	if !meta.PublishedAt.IsZero() {
		published = meta.PublishedAt
	}
	err := c.session.Query(`
		INSERT INTO video_metadata
			(video_id, title, channel, description, duration_sec, published_at, view_count, like_count, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.VideoID, meta.Title, meta.Channel, meta.Description, meta.DurationSec, published,
		meta.ViewCount, meta.LikeCount, meta.Tags).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Videos implements Store.
func (c *Cassandra) Videos(ctx context.Context) ([]string, error) {
	iter := c.session.Query(`SELECT DISTINCT video_id FROM video_chunks`).WithContext(ctx).Iter()
	ids := []string{}
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the session.
func (c *Cassandra) Close() error {
	c.session.Close()
	return nil
}
