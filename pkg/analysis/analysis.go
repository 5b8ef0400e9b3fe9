// Package analysis turns routed transcript chunks into answers: a
// structured analysis pass followed by a prose summary for the user.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/otherjamesbrown/vidq/pkg/llm"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

// Request is the input to one analysis pass.
type Request struct {
	Query     string
	Intent    router.Intent
	Chunks    []transcript.Chunk
	Metadata  *transcript.VideoMetadata
	TimeRange string
	Topic     string
}

// Result is the structured analysis of a set of chunks.
type Result struct {
	Answer    string   `json:"answer"`
	KeyPoints []string `json:"key_points"`
	TimeRange string   `json:"time_range,omitempty"`
}

// Analyzer produces a structured result for a routed question.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Summarizer turns a structured result into a reply for the user.
type Summarizer interface {
	SummarizeForUser(ctx context.Context, result *Result, query string) (string, error)
}

// Conversation answers questions that are not about a video.
type Conversation interface {
	Converse(ctx context.Context, query string) (string, error)
}

// Engine implements Analyzer, Summarizer and Conversation on top of a
// completion provider.
type Engine struct {
	provider llm.Provider
	prompts  *PromptTemplates
	logger   logging.Logger
	maxChars int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxTranscriptChars caps how much transcript text goes into one prompt.
func WithMaxTranscriptChars(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// DefaultMaxTranscriptChars bounds prompt size for long videos.
const DefaultMaxTranscriptChars = 48000

// NewEngine creates an Engine.
func NewEngine(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		prompts:  DefaultPromptTemplates(),
		logger:   logging.NewNopLogger(),
		maxChars: DefaultMaxTranscriptChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze asks the model for a JSON analysis. Output that is not valid
// JSON becomes the answer with no key points.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Result, error) {
	data := promptData{
		Query:       req.Query,
		Instruction: instructionFor(req.Intent),
		TimeRange:   req.TimeRange,
		Topic:       req.Topic,
		Metadata:    req.Metadata,
		Transcript:  FormatTranscript(req.Chunks, e.maxChars),
	}
	prompt, err := e.render(templateAnalyze, data)
	if err != nil {
		return nil, fmt.Errorf("render analysis prompt: %w", err)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analyzeSystemPrompt,
		Prompt:       prompt,
		JSONMode:     true,
		TraceID:      logging.RequestID(ctx),
		Stage:        "analyze",
	})
	if err != nil {
		return nil, fmt.Errorf("analysis completion: %w", err)
	}

	result, ok := ParseResult(resp.Content)
	if !ok {
		e.logger.WithContext(ctx).Warn("Analysis output was not JSON, using raw text",
			logging.F("intent", string(req.Intent)),
			logging.F("chars", len(resp.Content)),
		)
	}
	if result.TimeRange == "" {
		result.TimeRange = req.TimeRange
	}
	return result, nil
}

// SummarizeForUser rewrites a structured result as a short prose reply.
func (e *Engine) SummarizeForUser(ctx context.Context, result *Result, q string) (string, error) {
	if result == nil {
		return "", fmt.Errorf("summarize: nil analysis result")
	}
	prompt, err := e.render(templateSummarize, struct {
		Query  string
		Result *Result
	}{Query: q, Result: result})
	if err != nil {
		return "", fmt.Errorf("render summary prompt: %w", err)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarizeSystemPrompt,
		Prompt:       prompt,
		TraceID:      logging.RequestID(ctx),
		Stage:        "summarize",
	})
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return result.Answer, nil
	}
	return text, nil
}

// Converse answers a general question with a single completion.
func (e *Engine) Converse(ctx context.Context, q string) (string, error) {
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: conversationSystemPrompt,
		Prompt:       q,
		Temperature:  0.7,
		TraceID:      logging.RequestID(ctx),
		Stage:        "passthrough",
	})
	if err != nil {
		return "", fmt.Errorf("conversation completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ParseResult decodes model output into a Result. When the output is not
// a JSON object the raw text becomes the answer and ok is false.
func ParseResult(raw string) (*Result, bool) {
	var result Result
	if err := llm.DecodeJSON(raw, &result); err != nil {
		return &Result{Answer: strings.TrimSpace(raw), KeyPoints: []string{}}, false
	}
	if result.KeyPoints == nil {
		result.KeyPoints = []string{}
	}
	return &result, true
}

// FormatTranscript renders chunks one per line, prefixed with their start
// time when known, and stops before maxChars is exceeded.
func FormatTranscript(chunks []transcript.Chunk, maxChars int) string {
	var b strings.Builder
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		line := text
		if c.HasTiming() {
			line = fmt.Sprintf("[%s] %s", query.FormatSeconds(int(*c.StartSec)), text)
		}
		if maxChars > 0 && b.Len()+len(line)+1 > maxChars {
			if b.Len() == 0 {
				b.WriteString(line[:maxChars])
			}
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

func (e *Engine) render(name string, data interface{}) (string, error) {
	tmpl, ok := e.prompts.Templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
