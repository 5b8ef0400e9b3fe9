package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vidq/pkg/llm"
	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

// scriptedProvider returns canned replies in order and records requests.
type scriptedProvider struct {
	replies  []string
	err      error
	requests []llm.CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	reply := ""
	if len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
	}
	return &llm.CompletionResponse{Content: reply, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) CompleteStructured(context.Context, llm.CompletionRequest, interface{}) error {
	return errors.New("not used")
}

func (p *scriptedProvider) IsAvailable(context.Context) bool { return true }
func (p *scriptedProvider) Close() error { return nil }

func timedChunks() []transcript.Chunk {
	return []transcript.Chunk{
		{VideoID: "vid", Order: 0, Text: "intro to the episode", StartSec: transcript.Seconds(0), EndSec: transcript.Seconds(60)},
		{VideoID: "vid", Order: 1, Text: "   ", StartSec: transcript.Seconds(60), EndSec: transcript.Seconds(120)},
		{VideoID: "vid", Order: 2, Text: "the main argument", StartSec: transcript.Seconds(125), EndSec: transcript.Seconds(180)},
	}
}

func TestAnalyze_JSON(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"answer":"It is an intro.","key_points":["intro"],"time_range":""}`}}
	e := NewEngine(p)

	res, err := e.Analyze(context.Background(), Request{
		Query:     "what happens in the first 2 minutes?",
		Intent:    router.IntentTimeRange,
		Chunks:    timedChunks(),
		TimeRange: "0:00:00 - 0:02:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "It is an intro.", res.Answer)
	assert.Equal(t, []string{"intro"}, res.KeyPoints)
	assert.Equal(t, "0:00:00 - 0:02:00", res.TimeRange)

	require.Len(t, p.requests, 1)
	req := p.requests[0]
	assert.True(t, req.JSONMode)
	assert.Equal(t, "analyze", req.Stage)
	assert.Contains(t, req.Prompt, "SEGMENT: 0:00:00 - 0:02:00")
	assert.Contains(t, req.Prompt, "[0:02:05] the main argument")
	assert.Contains(t, req.Prompt, instructions[router.IntentTimeRange])
}

func TestAnalyze_NonJSONFallsBackToRawAnswer(t *testing.T) {
	p := &scriptedProvider{replies: []string{"  The speaker is upbeat throughout.  "}}
	res, err := NewEngine(p).Analyze(context.Background(), Request{Query: "how do they feel?", Intent: router.IntentSentiment})

	require.NoError(t, err)
	assert.Equal(t, "The speaker is upbeat throughout.", res.Answer)
	assert.NotNil(t, res.KeyPoints)
	assert.Empty(t, res.KeyPoints)
}

func TestAnalyze_MetadataInPrompt(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"answer":"Example Channel","key_points":[]}`}}
	meta := &transcript.VideoMetadata{
		VideoID:     "vid",
		Title:       "Rates Explained",
		Channel:     "Example Channel",
		PublishedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Tags:        []string{"finance", "rates"},
	}
	_, err := NewEngine(p).Analyze(context.Background(), Request{Query: "who uploaded this?", Intent: router.IntentMetadata, Metadata: meta})
	require.NoError(t, err)

	prompt := p.requests[0].Prompt
	assert.Contains(t, prompt, "Title: Rates Explained")
	assert.Contains(t, prompt, "Channel: Example Channel")
	assert.Contains(t, prompt, "Published: 2024-03-01")
	assert.Contains(t, prompt, "Tags: finance, rates")
	assert.NotContains(t, prompt, "Views:")
}

func TestAnalyze_ProviderError(t *testing.T) {
	p := &scriptedProvider{err: &llm.Error{Code: llm.ErrTimeout, Message: "request timeout"}}
	_, err := NewEngine(p).Analyze(context.Background(), Request{Query: "q", Intent: router.IntentFullSummary})

	require.Error(t, err)
	code, ok := llm.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, llm.ErrTimeout, code)
}

func TestSummarizeForUser(t *testing.T) {
	p := &scriptedProvider{replies: []string{"They open with an intro.\n"}}
	got, err := NewEngine(p).SummarizeForUser(context.Background(), &Result{
		Answer:    "Intro.",
		KeyPoints: []string{"welcome", "agenda"},
		TimeRange: "0:00:00 - 0:01:00",
	}, "what's at the start?")

	require.NoError(t, err)
	assert.Equal(t, "They open with an intro.", got)
	prompt := p.requests[0].Prompt
	assert.Contains(t, prompt, "- welcome\n- agenda")
	assert.Contains(t, prompt, "COVERS: 0:00:00 - 0:01:00")
	assert.False(t, p.requests[0].JSONMode)
}

func TestSummarizeForUser_EmptyReplyUsesAnswer(t *testing.T) {
	p := &scriptedProvider{replies: []string{""}}
	got, err := NewEngine(p).SummarizeForUser(context.Background(), &Result{Answer: "raw answer", KeyPoints: []string{}}, "q")
	require.NoError(t, err)
	assert.Equal(t, "raw answer", got)

	_, err = NewEngine(p).SummarizeForUser(context.Background(), nil, "q")
	assert.Error(t, err)
}

func TestConverse(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Paris."}}
	got, err := NewEngine(p).Converse(context.Background(), "what's the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", got)
	assert.Equal(t, "passthrough", p.requests[0].Stage)
}

func TestParseResult(t *testing.T) {
	res, ok := ParseResult("```json\n{\"answer\":\"a\"}\n```")
	assert.True(t, ok)
	assert.Equal(t, "a", res.Answer)
	assert.Equal(t, []string{}, res.KeyPoints)

	res, ok = ParseResult("plain words")
	assert.False(t, ok)
	assert.Equal(t, "plain words", res.Answer)
}

func TestFormatTranscript(t *testing.T) {
	untimed := []transcript.Chunk{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	assert.Equal(t, "one\ntwo\nthree", FormatTranscript(untimed, 0))
	assert.Equal(t, "one\ntwo", FormatTranscript(untimed, 8))

	long := []transcript.Chunk{{Text: strings.Repeat("x", 50)}}
	assert.Len(t, FormatTranscript(long, 10), 10)
}
