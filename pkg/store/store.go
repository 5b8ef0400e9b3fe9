// Package store persists transcript chunks and video metadata and serves
// them back to the question pipeline.
//
// Backends: in-memory (tests and one-shot CLI runs), SQLite (single user),
// PostgreSQL (shared deployments, full-text ranking) and Cassandra (large
// archives partitioned by video).
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/otherjamesbrown/vidq/pkg/db"
	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// Filter narrows a retrieval.
type Filter struct {
	VideoID string
}

// Retriever returns chunks for a query. An empty query with k == 0 returns
// every chunk matching the filter in transcript order.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter Filter) ([]transcript.Chunk, error)
}

// MetadataSource looks up video metadata. A missing video yields an error
// matching errors.ErrNotFound.
type MetadataSource interface {
	Metadata(ctx context.Context, videoID string) (*transcript.VideoMetadata, error)
}

// Writer stores ingested transcripts.
type Writer interface {
	// PutChunks replaces all chunks of videoID.
	PutChunks(ctx context.Context, videoID string, chunks []transcript.Chunk) error
	PutMetadata(ctx context.Context, meta *transcript.VideoMetadata) error
}

// Store is a complete backend.
type Store interface {
	Retriever
	MetadataSource
	Writer
	// Videos lists the IDs of videos with stored chunks.
	Videos(ctx context.Context) ([]string, error)
	Close() error
}

// Backend names accepted in Config.Backend.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendCassandra = "cassandra"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string          `yaml:"backend"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Postgres  db.Config       `yaml:"postgres"`
	Cassandra CassandraConfig `yaml:"cassandra"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// CassandraConfig configures the Cassandra backend.
type CassandraConfig struct {
	Hosts       []string      `yaml:"hosts"`
	Keyspace    string        `yaml:"keyspace"`
	Consistency string        `yaml:"consistency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Open opens the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, &cfg.Postgres)
	case BackendCassandra:
		return OpenCassandra(ctx, cfg.Cassandra)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", vqerrors.ErrValidation, cfg.Backend)
	}
}

// rank orders chunks for a query. With an empty query chunks come back in
// (video, order) sequence; otherwise only chunks sharing a term with the
// query are kept, best match first.
func rank(chunks []transcript.Chunk, query string, k int) []transcript.Chunk {
	out := make([]transcript.Chunk, 0, len(chunks))
	terms := transcript.Terms(query)
	if strings.TrimSpace(query) == "" {
		out = append(out, chunks...)
		sortChunks(out)
		return limit(out, k)
	}

	scores := make(map[int]int, len(chunks))
	for _, c := range chunks {
		if n := transcript.MatchCount(c.Text, terms); n > 0 {
			scores[len(out)] = n
			out = append(out, c)
		}
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := out[idx[a]], out[idx[b]]
		if scores[idx[a]] != scores[idx[b]] {
			return scores[idx[a]] > scores[idx[b]]
		}
		if ca.VideoID != cb.VideoID {
			return ca.VideoID < cb.VideoID
		}
		return ca.Order < cb.Order
	})
	ranked := make([]transcript.Chunk, len(out))
	for i, j := range idx {
		ranked[i] = out[j]
	}
	return limit(ranked, k)
}

func sortChunks(chunks []transcript.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].VideoID != chunks[j].VideoID {
			return chunks[i].VideoID < chunks[j].VideoID
		}
		return chunks[i].Order < chunks[j].Order
	})
}

func limit(chunks []transcript.Chunk, k int) []transcript.Chunk {
	if k > 0 && len(chunks) > k {
		return chunks[:k]
	}
	return chunks
}

// normalizeChunks stamps videoID on every chunk.
func normalizeChunks(videoID string, chunks []transcript.Chunk) []transcript.Chunk {
	out := make([]transcript.Chunk, len(chunks))
	for i, c := range chunks {
		c.VideoID = videoID
		out[i] = c
	}
	return out
}

func notFound(videoID string) error {
	return fmt.Errorf("metadata for video %s: %w", videoID, vqerrors.ErrNotFound)
}
