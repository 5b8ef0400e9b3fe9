package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// maxTopicHits caps how many chunks a topic question pulls in.
const maxTopicHits = 50

// TopicMatcher answers topic lookups from the index. Videos that have not
// been indexed are matched by the fallback instead.
type TopicMatcher struct {
	index    *Index
	fallback router.TopicMatcher
}

// NewTopicMatcher creates a TopicMatcher over index.
func NewTopicMatcher(index *Index) *TopicMatcher {
	return &TopicMatcher{index: index, fallback: router.KeywordMatcher{}}
}

// MatchTopic implements router.TopicMatcher. The returned chunks are taken
// from chunks and kept in transcript order.
func (m *TopicMatcher) MatchTopic(ctx context.Context, videoID, topic string, chunks []transcript.Chunk) ([]transcript.Chunk, error) {
	if strings.TrimSpace(topic) == "" || len(chunks) == 0 {
		return []transcript.Chunk{}, nil
	}

	orders, indexed, err := m.index.search(ctx, videoID, topic, maxTopicHits)
	if err != nil {
		return nil, err
	}
	if !indexed {
		return m.fallback.MatchTopic(ctx, videoID, topic, chunks)
	}

	out := make([]transcript.Chunk, 0, len(orders))
	for _, c := range chunks {
		if orders[c.Order] {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// search returns the orders of chunks of videoID matching text, and
// whether the video has any indexed chunks at all.
func (s *Index) search(ctx context.Context, videoID, text string, limit int) (map[int]bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	video := bleve.NewTermQuery(videoID)
	video.SetField("video_id")

	count, err := s.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(video, 0, 0, false))
	if err != nil {
		return nil, false, fmt.Errorf("count video chunks: %w", err)
	}
	if count.Total == 0 {
		return nil, false, nil
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("text")
	fuzzy := bleve.NewMatchQuery(text)
	fuzzy.SetField("text")
	fuzzy.SetFuzziness(1)
	fuzzy.SetBoost(0.5)

	q := bleve.NewConjunctionQuery(video, bleve.NewDisjunctionQuery(match, fuzzy))
	res, err := s.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, limit, 0, false))
	if err != nil {
		return nil, true, fmt.Errorf("search chunks: %w", err)
	}

	orders := make(map[int]bool, len(res.Hits))
	for _, hit := range res.Hits {
		if n, ok := orderFromID(hit.ID); ok {
			orders[n] = true
		}
	}
	return orders, true, nil
}
