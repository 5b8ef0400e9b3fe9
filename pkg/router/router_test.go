package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

func chunks(texts ...string) []transcript.Chunk {
	out := make([]transcript.Chunk, len(texts))
	for i, text := range texts {
		out[i] = transcript.Chunk{VideoID: "vid", Order: i, Text: text}
	}
	return out
}

func filler(n int) []transcript.Chunk {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("segment number %d", i)
	}
	return chunks(texts...)
}

func orders(cs []transcript.Chunk) []int {
	out := make([]int, len(cs))
	for i, c := range cs {
		out[i] = c.Order
	}
	return out
}

type failingMatcher struct{}

func (failingMatcher) MatchTopic(context.Context, string, string, []transcript.Chunk) ([]transcript.Chunk, error) {
	return nil, errors.New("index offline")
}

func TestRoute_PassthroughWithoutVideo(t *testing.T) {
	r := New()
	d := r.Route(context.Background(), "what's the capital of France?", VideoContext{})

	assert.Equal(t, IntentPassthrough, d.Intent)
	assert.Equal(t, "no_video", d.Rule)
	assert.Empty(t, d.Chunks)
	assert.False(t, d.NeedsAnalysis())
}

func TestRoute_TimeRange(t *testing.T) {
	r := New()
	video := VideoContext{VideoID: "vid", Chunks: filler(10), DurationSec: 600}

	d := r.Route(context.Background(), "summarize the last 5 minutes", video)
	require.Equal(t, IntentTimeRange, d.Intent)
	assert.Equal(t, []int{5, 6, 7, 8, 9}, orders(d.Chunks))
	assert.Equal(t, query.Range{Start: 300, End: 600}, d.Reference)
	assert.Equal(t, "0:05:00 - 0:10:00", d.TimeRange)
	assert.Equal(t, 600, d.DurationSec)
	assert.True(t, d.NeedsAnalysis())
}

func TestRoute_FirstMinutesUsesMetadataDuration(t *testing.T) {
	r := New()
	video := VideoContext{
		VideoID:  "vid",
		Chunks:   filler(10),
		Metadata: &transcript.VideoMetadata{VideoID: "vid", DurationSec: 1200},
	}

	d := r.Route(context.Background(), "what happens in the first 10 minutes?", video)
	require.Equal(t, IntentTimeRange, d.Intent)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, orders(d.Chunks))
}

func TestRoute_EmptyRangeSelectionFallsThrough(t *testing.T) {
	r := New()
	timed := filler(10)
	for i := range timed {
		timed[i].StartSec = transcript.Seconds(float64(i * 60))
		timed[i].EndSec = transcript.Seconds(float64((i + 1) * 60))
	}

	d := r.Route(context.Background(), "from 1:00:00 to 1:30:00", VideoContext{VideoID: "vid", Chunks: timed})
	assert.Equal(t, IntentFullSummary, d.Intent)
	assert.Len(t, d.Chunks, 10)
	assert.Equal(t, 600, d.DurationSec)
}

func TestRoute_RangeFromStartAnchor(t *testing.T) {
	r := New()
	video := VideoContext{VideoID: "vid", Chunks: filler(10), DurationSec: 600}

	d := r.Route(context.Background(), "from the beginning to 5 minutes", video)
	require.Equal(t, IntentTimeRange, d.Intent)
	assert.Equal(t, query.Range{Start: 0, End: 300}, d.Reference)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, orders(d.Chunks))
}

func TestRoute_Timestamp(t *testing.T) {
	r := New()
	d := r.Route(context.Background(), "what is said at 2:30", VideoContext{VideoID: "vid", Chunks: filler(20)})

	require.Equal(t, IntentTimestamp, d.Intent)
	assert.Equal(t, []int{5}, orders(d.Chunks))
	assert.Equal(t, query.Instant{Seconds: 150}, d.Reference)
	assert.Equal(t, query.DefaultDurationSec, d.DurationSec)
}

func TestRoute_RangeBeatsPoint(t *testing.T) {
	r := New()
	d := r.Route(context.Background(), "compare the first 5 minutes with the 8th minute",
		VideoContext{VideoID: "vid", Chunks: filler(10), DurationSec: 600})
	assert.Equal(t, IntentTimeRange, d.Intent)
}

func TestRoute_Topic(t *testing.T) {
	r := New()
	video := VideoContext{VideoID: "vid", Chunks: chunks(
		"welcome to the show",
		"today we discuss inflation and interest rates",
		"thanks for watching",
		"inflation is cooling",
	)}

	d := r.Route(context.Background(), "what do they say about inflation?", video)
	require.Equal(t, IntentTopic, d.Intent)
	assert.Equal(t, "inflation", d.Topic)
	assert.Equal(t, []int{1, 3}, orders(d.Chunks))
}

func TestRoute_TopicWithoutMatchesFallsThrough(t *testing.T) {
	r := New()
	d := r.Route(context.Background(), "tell me about dinosaurs", VideoContext{VideoID: "vid", Chunks: filler(3)})
	assert.Equal(t, IntentFullSummary, d.Intent)
	assert.Len(t, d.Chunks, 3)
}

func TestRoute_TopicMatcherErrorFallsThrough(t *testing.T) {
	r := New(WithTopicMatcher(failingMatcher{}))
	d := r.Route(context.Background(), "how do they feel about segment", VideoContext{VideoID: "vid", Chunks: filler(3)})
	assert.Equal(t, IntentSentiment, d.Intent)
}

func TestRoute_Sentiment(t *testing.T) {
	r := New()
	d := r.Route(context.Background(), "what's the sentiment of this video?", VideoContext{VideoID: "vid", Chunks: filler(4)})

	assert.Equal(t, IntentSentiment, d.Intent)
	assert.Len(t, d.Chunks, 4)
	assert.True(t, d.NeedsAnalysis())
}

func TestRoute_Metadata(t *testing.T) {
	r := New()

	without := r.Route(context.Background(), "who uploaded this?", VideoContext{VideoID: "vid", Chunks: filler(2)})
	assert.Equal(t, IntentMetadata, without.Intent)
	assert.Equal(t, MetadataUnavailableMessage, without.Message)
	assert.False(t, without.NeedsAnalysis())

	with := r.Route(context.Background(), "who uploaded this?", VideoContext{
		VideoID:  "vid",
		Chunks:   filler(2),
		Metadata: &transcript.VideoMetadata{VideoID: "vid", Channel: "Example"},
	})
	assert.Equal(t, IntentMetadata, with.Intent)
	assert.Empty(t, with.Message)
	assert.True(t, with.NeedsAnalysis())
}

func TestRoute_ContentQuestionsAreNotMetadata(t *testing.T) {
	r := New()
	video := VideoContext{VideoID: "vid", Chunks: filler(4)}

	for _, u := range []string{
		"what are the speaker's views on climate policy?",
		"what is this video like?",
		"give me the length of the argument",
	} {
		d := r.Route(context.Background(), u, video)
		assert.NotEqual(t, IntentMetadata, d.Intent, u)
		assert.Empty(t, d.Message, u)
	}
}

func TestRoute_FullSummary(t *testing.T) {
	r := New()
	d := r.Route(context.Background(), "summarize this", VideoContext{VideoID: "vid", Chunks: filler(3)})
	assert.Equal(t, IntentFullSummary, d.Intent)
	assert.Equal(t, "full_summary", d.Rule)
	assert.Equal(t, "vid", d.VideoID)
}

func TestRoute_Deterministic(t *testing.T) {
	r := New()
	video := VideoContext{VideoID: "vid", Chunks: filler(10), DurationSec: 600}

	var wg sync.WaitGroup
	results := make([]Decision, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Route(context.Background(), "first 3 minutes", video)
		}(i)
	}
	wg.Wait()

	for _, d := range results[1:] {
		assert.Equal(t, results[0], d)
	}
}

func TestDuration(t *testing.T) {
	r := New(WithParser(query.NewParser(query.WithDefaultDuration(900))))
	timed := filler(2)
	timed[1].StartSec = transcript.Seconds(60)
	timed[1].EndSec = transcript.Seconds(130.4)

	assert.Equal(t, 42, r.Duration(VideoContext{DurationSec: 42, Metadata: &transcript.VideoMetadata{DurationSec: 7}}))
	assert.Equal(t, 7, r.Duration(VideoContext{Metadata: &transcript.VideoMetadata{DurationSec: 7}}))
	assert.Equal(t, 130, r.Duration(VideoContext{Chunks: timed}))
	assert.Equal(t, 900, r.Duration(VideoContext{Chunks: filler(2)}))
}

func TestKeywordMatcher_StopwordOnlyTopic(t *testing.T) {
	got, err := KeywordMatcher{}.MatchTopic(context.Background(), "vid", "this video", filler(3))
	require.NoError(t, err)
	assert.Empty(t, got)
}
