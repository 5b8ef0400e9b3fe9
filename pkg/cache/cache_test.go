package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vidq/pkg/analysis"
	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
)

type countingAnalyzer struct {
	calls atomic.Int32
	err   error
}

func (c *countingAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &analysis.Result{Answer: "answer to " + req.Query, KeyPoints: []string{"one"}}, nil
}

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func request(query string) analysis.Request {
	return analysis.Request{
		Query:  query,
		Intent: router.IntentFullSummary,
		Chunks: []transcript.Chunk{
			{VideoID: "dQw4w9WgXcQ", Order: 0, Text: "hello"},
			{VideoID: "dQw4w9WgXcQ", Order: 1, Text: "world"},
		},
	}
}

func TestCache_GetSet(t *testing.T) {
	c := newCache(t)

	var got analysis.Result
	hit, err := c.Get("missing", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set("k", analysis.Result{Answer: "a", KeyPoints: []string{"b"}}))
	hit, err = c.Get("k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "a", got.Answer)
	assert.Equal(t, []string{"b"}, got.KeyPoints)
}

func TestCache_Expiry(t *testing.T) {
	c, err := Open(Options{TTL: time.Second})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set("k", "v"))
	time.Sleep(1100 * time.Millisecond)

	var got string
	hit, err := c.Get("k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestAnalyzer_CachesResult(t *testing.T) {
	inner := &countingAnalyzer{}
	a := NewAnalyzer(newCache(t), inner)

	first, err := a.Analyze(context.Background(), request("summarize"))
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), request("  Summarize "))
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, first, second)

	_, err = a.Analyze(context.Background(), request("what is the tone?"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestAnalyzer_ErrorsAreNotCached(t *testing.T) {
	inner := &countingAnalyzer{err: errors.New("model down")}
	a := NewAnalyzer(newCache(t), inner)

	for i := 0; i < 2; i++ {
		_, err := a.Analyze(context.Background(), request("summarize"))
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestDropVideo(t *testing.T) {
	inner := &countingAnalyzer{}
	c := newCache(t)
	a := NewAnalyzer(c, inner)

	_, err := a.Analyze(context.Background(), request("summarize"))
	require.NoError(t, err)
	require.NoError(t, c.DropVideo("dQw4w9WgXcQ"))

	_, err = a.Analyze(context.Background(), request("summarize"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestKey(t *testing.T) {
	base := request("summarize")
	assert.Contains(t, Key(base), "analysis:dQw4w9WgXcQ:")
	assert.Equal(t, Key(base), Key(request("SUMMARIZE")))

	ranged := base
	ranged.TimeRange = "0:00:00 - 0:05:00"
	assert.NotEqual(t, Key(base), Key(ranged))

	fewer := base
	fewer.Chunks = base.Chunks[:1]
	assert.NotEqual(t, Key(base), Key(fewer))
}
