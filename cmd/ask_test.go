package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/vidq/config"
	"github.com/otherjamesbrown/vidq/pkg/app"
	"github.com/otherjamesbrown/vidq/pkg/llm"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/store"
)

const testVideoID = "dQw4w9WgXcQ"

const testVTT = `WEBVTT

00:00:01.000 --> 00:00:30.000
Welcome to the talk. We start with the history of caching.

00:00:30.000 --> 00:02:00.000
Next we compare write-through and write-back caches.

00:02:00.000 --> 00:05:00.000
Finally we discuss pricing for managed cache services.
`

type cannedProvider struct {
	calls int
}

func (p *cannedProvider) Name() string { return "canned" }

func (p *cannedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.calls++
	if req.JSONMode {
		return &llm.CompletionResponse{
			Content:      `{"answer":"They compare cache strategies.","key_points":["write-through","write-back"],"time_range":""}`,
			FinishReason: "stop",
		}, nil
	}
	return &llm.CompletionResponse{Content: "A talk about caching strategies.", FinishReason: "stop"}, nil
}

func (p *cannedProvider) CompleteStructured(context.Context, llm.CompletionRequest, interface{}) error {
	return errors.New("not used")
}

func (p *cannedProvider) IsAvailable(context.Context) bool { return true }
func (p *cannedProvider) Close() error                    { return nil }

// testAppDeps returns deps whose apps share one memory store.
func testAppDeps(t *testing.T) (*AppCommandDeps, *cannedProvider) {
	t.Helper()
	t.Setenv("VIDQ_CONFIG_DIR", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.Search = config.SearchConfig{Enabled: true}
	cfg.Cache = config.CacheConfig{Enabled: false}
	cfg.Scrape.Backend = config.ScrapeMemory

	provider := &cannedProvider{}
	st := store.NewMemory()
	return &AppCommandDeps{
		Config: cfg,
		OpenApp: func(cfg *config.CLIConfig, logger logging.Logger) (*app.App, error) {
			return app.New(app.Options{Config: cfg, Logger: logger, Provider: provider, Store: st})
		},
	}, provider
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCaptions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), testVideoID+".en.vtt")
	require.NoError(t, os.WriteFile(path, []byte(testVTT), 0o600))
	return path
}

func TestIngestCommand(t *testing.T) {
	deps, _ := testAppDeps(t)

	out, err := execute(t, NewIngestCommand(deps), writeCaptions(t), "--title", "Caching 101")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested")
	assert.Contains(t, out, testVideoID)
	assert.Contains(t, out, "0:05:00")

	out, err = execute(t, NewVideosCommand(deps))
	require.NoError(t, err)
	assert.Contains(t, out, testVideoID)
	assert.Contains(t, out, "Caching 101")
}

func TestIngestCommand_NeedsVideo(t *testing.T) {
	deps, _ := testAppDeps(t)
	path := filepath.Join(t.TempDir(), "talk.vtt")
	require.NoError(t, os.WriteFile(path, []byte(testVTT), 0o600))

	_, err := execute(t, NewIngestCommand(deps), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--video")

	_, err = execute(t, NewIngestCommand(deps), path, "--video", testVideoID, "--format", "docx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestAskCommand(t *testing.T) {
	deps, provider := testAppDeps(t)
	_, err := execute(t, NewIngestCommand(deps), writeCaptions(t))
	require.NoError(t, err)

	out, err := execute(t, NewAskCommand(deps), "what", "happens", "in", "the", "first", "2", "minutes?", "--video", testVideoID)
	require.NoError(t, err)
	assert.Contains(t, out, "A talk about caching strategies.")
	assert.Contains(t, out, "write-through")
	assert.Contains(t, out, "intent time_range")
	assert.Positive(t, provider.calls)
}

func TestAskCommand_JSON(t *testing.T) {
	deps, _ := testAppDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON
	_, err := execute(t, NewIngestCommand(deps), writeCaptions(t))
	require.NoError(t, err)

	out, err := execute(t, NewAskCommand(deps), "summarize https://youtu.be/"+testVideoID)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, testVideoID, got["video_id"])
	assert.Equal(t, "full_summary", got["intent"])
}

func TestResolveCommand(t *testing.T) {
	deps, provider := testAppDeps(t)
	_, err := execute(t, NewIngestCommand(deps), writeCaptions(t))
	require.NoError(t, err)

	out, err := execute(t, NewResolveCommand(deps), "what do they say at 2:30?", "-v", testVideoID, "--text")
	require.NoError(t, err)
	assert.Contains(t, out, "timestamp")
	assert.Contains(t, out, "pricing")
	assert.Zero(t, provider.calls)
}

func TestScrapeCommands(t *testing.T) {
	deps, _ := testAppDeps(t)

	_, err := execute(t, NewScrapeCommand(deps), "add", "nope")
	require.Error(t, err)

	out, err := execute(t, NewScrapeCommand(deps), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "memory")

	deps.Config.Scrape.Backend = config.ScrapeNone
	_, err = execute(t, NewScrapeCommand(deps), "status")
	assert.ErrorIs(t, err, errNoScrapeQueue)
}

func TestHistoryCommand_NotConfigured(t *testing.T) {
	deps, _ := testAppDeps(t)
	_, err := execute(t, NewHistoryCommand(deps))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestVideoIDFromFileName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"dQw4w9WgXcQ.en.vtt", testVideoID},
		{"/tmp/captions/dQw4w9WgXcQ.srt", testVideoID},
		{"Never Gonna Give You Up [dQw4w9WgXcQ].en.vtt", testVideoID},
		{"talk.vtt", ""},
		{"-", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, videoIDFromFileName(tt.path))
		})
	}
}

func TestAskFlags_Request(t *testing.T) {
	f := askFlags{video: "https://www.youtube.com/watch?v=" + testVideoID, duration: 300}
	req := f.request([]string{"what", "is", "this?"})
	assert.Equal(t, "what is this?", req.Query)
	assert.Equal(t, f.video, req.VideoURL)
	assert.Empty(t, req.VideoID)
	assert.Equal(t, 300, req.DurationSec)

	f = askFlags{video: testVideoID}
	req = f.request([]string{"hi"})
	assert.Equal(t, testVideoID, req.VideoID)
	assert.True(t, strings.HasPrefix(req.Query, "hi"))
}
