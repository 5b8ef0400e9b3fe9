package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vidq/pkg/assistant"
	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/router"
)

type fakeAsker struct {
	last assistant.AskRequest
	err  error
}

func (f *fakeAsker) Ask(_ context.Context, req assistant.AskRequest) (*assistant.Answer, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &assistant.Answer{
		Text:      "The speaker sets up the demo.",
		KeyPoints: []string{"installs the CLI", "runs the first query"},
		Intent:    router.IntentTimeRange,
		TimeRange: "0:00:00 - 0:05:00",
	}, nil
}

func (f *fakeAsker) Resolve(_ context.Context, req assistant.AskRequest) (*assistant.Resolution, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &assistant.Resolution{
		VideoID:  "dQw4w9WgXcQ",
		Outcome:  "answered",
		Decision: router.Decision{Intent: router.IntentTopic, Topic: "pricing"},
	}, nil
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestAskTool(t *testing.T) {
	asker := &fakeAsker{}
	s := New(asker, nil)

	res, err := s.handleAsk(context.Background(), call(ToolAsk, map[string]any{
		"query":        "what happens in the first 5 minutes?",
		"video":        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"duration_sec": 600.0,
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "The speaker sets up the demo.")
	assert.Contains(t, text, "- installs the CLI")
	assert.Contains(t, text, "time range 0:00:00 - 0:05:00")

	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", asker.last.VideoURL)
	assert.Empty(t, asker.last.VideoID)
	assert.Equal(t, 600, asker.last.DurationSec)
}

func TestAskTool_VideoID(t *testing.T) {
	asker := &fakeAsker{}
	s := New(asker, nil)

	_, err := s.handleAsk(context.Background(), call(ToolAsk, map[string]any{
		"query": "summarize",
		"video": "dQw4w9WgXcQ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", asker.last.VideoID)
}

func TestAskTool_MissingQuery(t *testing.T) {
	s := New(&fakeAsker{}, nil)

	for _, args := range []map[string]any{{}, {"query": "   "}} {
		res, err := s.handleAsk(context.Background(), call(ToolAsk, args))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
}

func TestAskTool_ClassifiedError(t *testing.T) {
	s := New(&fakeAsker{err: vqerrors.NewQueryError(vqerrors.ErrRateLimit, vqerrors.StageAnalyze, "model rate limited", errors.New("429"))}, nil)

	res, err := s.handleAsk(context.Background(), call(ToolAsk, map[string]any{"query": "summarize"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "rate_limit")
}

func TestResolveTool(t *testing.T) {
	s := New(&fakeAsker{}, nil)

	res, err := s.handleResolve(context.Background(), call(ToolResolve, map[string]any{"query": "what do they say about pricing?"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, `"intent": "topic"`)
	assert.Contains(t, text, `"topic": "pricing"`)
}

func TestToolsRegistered(t *testing.T) {
	s := New(&fakeAsker{}, nil)
	tools := s.MCPServer().ListTools()
	assert.Contains(t, tools, ToolAsk)
	assert.Contains(t, tools, ToolResolve)
}
