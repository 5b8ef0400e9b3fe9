package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/otherjamesbrown/vidq/pkg/buildinfo"
)

// OpenAIProvider calls the OpenAI chat completions API, or any endpoint
// that speaks it when BaseURL is set (e.g. OpenRouter).
type OpenAIProvider struct {
	config Config
	client openai.Client
	name   string
}

// NewOpenAIProvider creates a provider backed by the openai-go client.
func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(1),
		option.WithHeader("User-Agent", buildinfo.UserAgent()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{
		config: cfg,
		client: openai.NewClient(opts...),
		name:   fmt.Sprintf("openai-%s", cfg.Model),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	var msgs []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       p.config.Model,
		Temperature: openai.Float(float64(temperature(req))),
		MaxTokens:   openai.Int(int64(maxTokens(req))),
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Code: ErrParseFailure, Message: "no choices in response"}
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		LatencyMs:    int(time.Since(start).Milliseconds()),
		Model:        resp.Model,
		TokensUsed: TokenUsage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// CompleteStructured sends a request expecting JSON output and parses it.
func (p *OpenAIProvider) CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error {
	return completeStructured(ctx, p, p.config.MaxRetries, req, target)
}

// IsAvailable lists models as a cheap reachability check.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.Models.List(ctx)
	return err == nil
}

// Close releases provider resources.
func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
		return &Error{Code: ErrTimeout, Message: "request timeout"}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Code:    codeForStatus(apiErr.StatusCode),
			Message: fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, apiErr.Message),
		}
	}
	return &Error{Code: ErrUnavailable, Message: fmt.Sprintf("request failed: %v", err)}
}
