package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/otherjamesbrown/vidq/pkg/buildinfo"
)

// HTTPProvider talks to any server exposing the OpenAI-compatible
// /v1/chat/completions endpoint (vLLM, llama.cpp, Ollama).
type HTTPProvider struct {
	config     Config
	httpClient *http.Client
	name       string
}

// NewHTTPProvider creates an OpenAI-compatible HTTP provider.
func NewHTTPProvider(cfg Config) *HTTPProvider {
	return &HTTPProvider{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		name:       fmt.Sprintf("http-%s", cfg.Model),
	}
}

// Name returns the provider identifier.
func (p *HTTPProvider) Name() string {
	return p.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete sends a chat completion request.
func (p *HTTPProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	chatReq := chatRequest{
		Model:       p.config.Model,
		Messages:    messages(req),
		Temperature: temperature(req),
		MaxTokens:   maxTokens(req),
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, &Error{Code: ErrParseFailure, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.config.BaseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: ErrUnavailable, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", buildinfo.UserAgent())
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return nil, &Error{Code: ErrTimeout, Message: "request timeout"}
		}
		return nil, &Error{Code: ErrUnavailable, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ErrParseFailure, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Code:    codeForStatus(resp.StatusCode),
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &Error{Code: ErrParseFailure, Message: fmt.Sprintf("parse response: %v", err)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, &Error{Code: ErrParseFailure, Message: "no choices in response"}
	}

	return &CompletionResponse{
		Content:      chatResp.Choices[0].Message.Content,
		FinishReason: chatResp.Choices[0].FinishReason,
		LatencyMs:    int(time.Since(start).Milliseconds()),
		Model:        chatResp.Model,
		TokensUsed: TokenUsage{
			Prompt:     chatResp.Usage.PromptTokens,
			Completion: chatResp.Usage.CompletionTokens,
			Total:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStructured sends a request expecting JSON output and parses it.
func (p *HTTPProvider) CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error {
	return completeStructured(ctx, p, p.config.MaxRetries, req, target)
}

// IsAvailable checks the server's model listing.
func (p *HTTPProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases provider resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func messages(req CompletionRequest) []chatMessage {
	var out []chatMessage
	if req.SystemPrompt != "" {
		out = append(out, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	return append(out, chatMessage{Role: "user", Content: req.Prompt})
}

func temperature(req CompletionRequest) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return 0.2
}

func maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 2048
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
