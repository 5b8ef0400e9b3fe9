package router

import (
	"context"
	"sort"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// KeywordMatcher selects chunks that share at least one content word with
// the topic, keeping transcript order. It needs no index.
type KeywordMatcher struct{}

// MatchTopic implements TopicMatcher.
func (KeywordMatcher) MatchTopic(_ context.Context, _ string, topic string, chunks []transcript.Chunk) ([]transcript.Chunk, error) {
	terms := transcript.Terms(topic)
	out := make([]transcript.Chunk, 0)
	if len(terms) == 0 {
		return out, nil
	}
	for _, c := range chunks {
		if transcript.MatchCount(c.Text, terms) > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}
