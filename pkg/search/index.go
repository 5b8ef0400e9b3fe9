// Package search maintains a full-text index of transcript chunks and uses
// it for topic questions.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// Index wraps a Bleve index of transcript chunks. All methods are safe for
// concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger logging.Logger
	mu     sync.RWMutex
}

// Options configures the index.
type Options struct {
	// DataPath is the directory holding the index. Empty means in memory.
	DataPath string
	Logger   logging.Logger
}

// Open creates or opens the chunk index. An index on disk with an older
// mapping version, or one that fails to open, is recreated.
func Open(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: index, logger: logger}, nil
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}
	indexPath := filepath.Join(opts.DataPath, "chunks.bleve")
	versionPath := filepath.Join(opts.DataPath, "chunks.version")

	var index bleve.Index
	if _, err := os.Stat(indexPath); err == nil {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(existing) != mappingVersion:
			logger.Info("Search index mapping changed, rebuilding",
				logging.F("old_version", string(existing)),
				logging.F("new_version", mappingVersion),
			)
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("Failed to open search index, recreating", logging.F("path", indexPath), logging.Err(err))
				index = nil
			}
		}
		if index == nil {
			if err := os.RemoveAll(indexPath); err != nil {
				return nil, fmt.Errorf("remove old index: %w", err)
			}
		}
	}

	if index == nil {
		var err error
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("Failed to write search version file", logging.Err(err))
		}
		logger.Debug("Created search index", logging.F("path", indexPath))
	}

	return &Index{index: index, path: indexPath, logger: logger}, nil
}

// Close closes the index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// docID is the document ID for a chunk.
func docID(videoID string, order int) string {
	return fmt.Sprintf("%s#%06d", videoID, order)
}

// orderFromID extracts the chunk order from a document ID.
func orderFromID(id string) (int, bool) {
	i := strings.LastIndexByte(id, '#')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	return n, err == nil
}

func chunkDoc(c transcript.Chunk) map[string]interface{} {
	doc := map[string]interface{}{
		"video_id": c.VideoID,
		"order":    float64(c.Order),
		"text":     c.Text,
	}
	if c.StartSec != nil {
		doc["start_sec"] = *c.StartSec
	}
	return doc
}

// IndexChunks replaces the indexed chunks of videoID.
func (s *Index) IndexChunks(ctx context.Context, videoID string, chunks []transcript.Chunk) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale, err := s.videoDocIDs(ctx, videoID)
	if err != nil {
		return err
	}

	const batchSize = 500
	batch := s.index.NewBatch()
	for _, id := range stale {
		batch.Delete(id)
	}
	for _, c := range chunks {
		c.VideoID = videoID
		if err := batch.Index(docID(videoID, c.Order), chunkDoc(c)); err != nil {
			return fmt.Errorf("batch index chunk %d: %w", c.Order, err)
		}
		if batch.Size() >= batchSize {
			if err := s.index.Batch(batch); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}
	return nil
}

// DeleteVideo removes every chunk of videoID from the index.
func (s *Index) DeleteVideo(ctx context.Context, videoID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.videoDocIDs(ctx, videoID)
	if err != nil {
		return err
	}
	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return s.index.Batch(batch)
}

// DocumentCount returns the number of indexed chunks.
func (s *Index) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// videoDocIDs lists the document IDs of a video. Callers hold mu.
func (s *Index) videoDocIDs(ctx context.Context, videoID string) ([]string, error) {
	q := bleve.NewTermQuery(videoID)
	q.SetField("video_id")

	const page = 1000
	var ids []string
	for from := 0; ; from += page {
		req := bleve.NewSearchRequestOptions(q, page, from, false)
		res, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("list video documents: %w", err)
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < page {
			return ids, nil
		}
	}
}
