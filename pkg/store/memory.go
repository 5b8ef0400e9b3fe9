package store

import (
	"context"
	"sort"
	"sync"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	chunks   map[string][]transcript.Chunk
	metadata map[string]transcript.VideoMetadata
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		chunks:   make(map[string][]transcript.Chunk),
		metadata: make(map[string]transcript.VideoMetadata),
	}
}

// Retrieve implements Retriever.
func (m *Memory) Retrieve(_ context.Context, query string, k int, filter Filter) ([]transcript.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []transcript.Chunk
	if filter.VideoID != "" {
		all = m.chunks[filter.VideoID]
	} else {
		for _, cs := range m.chunks {
			all = append(all, cs...)
		}
	}
	return rank(all, query, k), nil
}

// Metadata implements MetadataSource.
func (m *Memory) Metadata(_ context.Context, videoID string) (*transcript.VideoMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.metadata[videoID]
	if !ok {
		return nil, notFound(videoID)
	}
	meta.Tags = append([]string(nil), meta.Tags...)
	return &meta, nil
}

// PutChunks implements Writer.
func (m *Memory) PutChunks(_ context.Context, videoID string, chunks []transcript.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(chunks) == 0 {
		delete(m.chunks, videoID)
		return nil
	}
	m.chunks[videoID] = normalizeChunks(videoID, chunks)
	return nil
}

// PutMetadata implements Writer.
func (m *Memory) PutMetadata(_ context.Context, meta *transcript.VideoMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	cp.Tags = append([]string(nil), meta.Tags...)
	m.metadata[meta.VideoID] = cp
	return nil
}

// Videos implements Store.
func (m *Memory) Videos(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
