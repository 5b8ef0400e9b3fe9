// Package mcpserver exposes the assistant as Model Context Protocol tools
// so chat clients can ask about videos directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/otherjamesbrown/vidq/pkg/assistant"
	"github.com/otherjamesbrown/vidq/pkg/buildinfo"
	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// Tool names.
const (
	ToolAsk     = "ask_video"
	ToolResolve = "resolve_query"
)

// Asker is the part of the assistant the tools call.
type Asker interface {
	Ask(ctx context.Context, req assistant.AskRequest) (*assistant.Answer, error)
	Resolve(ctx context.Context, req assistant.AskRequest) (*assistant.Resolution, error)
}

// Server wraps an MCP server with the vidq tools registered.
type Server struct {
	asker  Asker
	mcp    *server.MCPServer
	logger logging.Logger
}

// New builds the MCP server.
func New(asker Asker, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Server{
		asker:  asker,
		mcp:    server.NewMCPServer("vidq", buildinfo.Version, server.WithToolCapabilities(false)),
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool(ToolAsk,
		mcp.WithDescription("Answer a question about a YouTube video from its transcript. "+
			"Understands time references (\"the last 5 minutes\", \"at 2:30\"), topics, sentiment and metadata questions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("video", mcp.Description("YouTube video ID or URL; omit when the question contains the link")),
		mcp.WithNumber("duration_sec", mcp.Description("Video length in seconds when known")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool(ToolResolve,
		mcp.WithDescription("Show how a question about a video would be routed (intent, time range, selected chunks) without calling a model."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to route")),
		mcp.WithString("video", mcp.Description("YouTube video ID or URL")),
		mcp.WithNumber("duration_sec", mcp.Description("Video length in seconds when known")),
	), s.handleResolve)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves the tools over stdin/stdout until ctx is done or
// stdin closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	askReq, err := askRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.asker.Ask(ctx, askReq)
	if err != nil {
		return s.toolError(ctx, ToolAsk, err), nil
	}
	return mcp.NewToolResultText(formatAnswer(answer)), nil
}

func (s *Server) handleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	askReq, err := askRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.asker.Resolve(ctx, askReq)
	if err != nil {
		return s.toolError(ctx, ToolResolve, err), nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resolution: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports a failed call to the client as a tool error, which
// the model can read, rather than a protocol error.
func (s *Server) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	qe := vqerrors.ClassifyError(err, "")
	s.logger.WithContext(ctx).Warn("mcp tool failed",
		logging.F("tool", tool),
		logging.F("code", string(qe.Code)),
		logging.Err(err),
	)
	msg := fmt.Sprintf("%s (%s)", qe.Message, qe.Code)
	if action := vqerrors.GetSuggestedAction(qe.Code); action != "" {
		msg += ": " + action
	}
	return mcp.NewToolResultError(msg)
}

func askRequest(req mcp.CallToolRequest) (assistant.AskRequest, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return assistant.AskRequest{}, err
	}
	if strings.TrimSpace(q) == "" {
		return assistant.AskRequest{}, errors.New("query must not be empty")
	}
	out := assistant.AskRequest{Query: q}
	if video := strings.TrimSpace(req.GetString("video", "")); video != "" {
		if strings.Contains(video, "/") {
			out.VideoURL = video
		} else {
			out.VideoID = video
		}
	}
	if d := req.GetFloat("duration_sec", 0); d > 0 {
		out.DurationSec = int(d)
	}
	return out, nil
}

// formatAnswer renders an answer as plain text for the calling model.
func formatAnswer(a *assistant.Answer) string {
	var b strings.Builder
	b.WriteString(a.Text)
	if len(a.KeyPoints) > 0 {
		b.WriteString("\n\nKey points:")
		for _, p := range a.KeyPoints {
			b.WriteString("\n- ")
			b.WriteString(p)
		}
	}
	var meta []string
	if a.TimeRange != "" {
		meta = append(meta, "time range "+a.TimeRange)
	}
	if a.Topic != "" {
		meta = append(meta, "topic "+a.Topic)
	}
	if a.Intent != "" {
		meta = append(meta, "intent "+string(a.Intent))
	}
	if len(meta) > 0 {
		b.WriteString("\n\n(")
		b.WriteString(strings.Join(meta, ", "))
		b.WriteString(")")
	}
	return b.String()
}
