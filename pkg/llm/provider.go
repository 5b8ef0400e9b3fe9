// Package llm defines the completion providers vidq uses for analysis,
// summaries and conversational passthrough.
package llm

import (
	"context"
	"fmt"
)

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai-gpt-4o-mini").
	Name() string

	// Complete sends a completion request and returns the raw response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CompleteStructured sends a request expecting JSON output and decodes it into target.
	CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error

	// IsAvailable checks if the provider is currently reachable.
	IsAvailable(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// CompletionRequest represents a request to the model.
type CompletionRequest struct {
	// Prompt is the user message.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system-level instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// JSONMode asks the backend for a JSON object.
	JSONMode bool `json:"json_mode"`

	// MaxTokens limits response length (0 = provider default).
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0 = provider default).
	Temperature float32 `json:"temperature,omitempty"`

	// Metadata for tracing/logging.
	TraceID string `json:"trace_id,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// CompletionResponse represents a response from the model.
type CompletionResponse struct {
	Content    string     `json:"content"`
	TokensUsed TokenUsage `json:"tokens_used"`
	LatencyMs  int        `json:"latency_ms"`
	Model      string     `json:"model"`

	// FinishReason is "stop" for a natural end and "length" when max tokens was hit.
	FinishReason string `json:"finish_reason,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// ProviderRegistry holds named providers with a primary and an optional
// fallback.
type ProviderRegistry struct {
	providers map[string]Provider
	primary   string
	fallback  string
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register adds a provider under name.
func (r *ProviderRegistry) Register(name string, p Provider) {
	r.providers[name] = p
}

// SetPrimary sets the primary provider.
func (r *ProviderRegistry) SetPrimary(name string) { r.primary = name }

// SetFallback sets the fallback provider.
func (r *ProviderRegistry) SetFallback(name string) { r.fallback = name }

// Get returns a provider by name.
func (r *ProviderRegistry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the primary provider.
func (r *ProviderRegistry) Primary() (Provider, bool) { return r.Get(r.primary) }

// Fallback returns the fallback provider.
func (r *ProviderRegistry) Fallback() (Provider, bool) { return r.Get(r.fallback) }

// Provider returns a Provider that calls the primary and, when the primary
// fails with a retryable error, the fallback.
func (r *ProviderRegistry) Provider() (Provider, error) {
	primary, ok := r.Primary()
	if !ok {
		return nil, fmt.Errorf("primary provider %q not registered", r.primary)
	}
	fallback, ok := r.Fallback()
	if !ok || r.fallback == r.primary {
		return primary, nil
	}
	return &failover{primary: primary, fallback: fallback}, nil
}

// Close closes all registered providers.
func (r *ProviderRegistry) Close() error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

type failover struct {
	primary  Provider
	fallback Provider
}

func (f *failover) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *failover) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := f.primary.Complete(ctx, req)
	if err == nil || !shouldFailover(ctx, err) {
		return resp, err
	}
	return f.fallback.Complete(ctx, req)
}

func (f *failover) CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error {
	err := f.primary.CompleteStructured(ctx, req, target)
	if err == nil || !shouldFailover(ctx, err) {
		return err
	}
	return f.fallback.CompleteStructured(ctx, req, target)
}

func (f *failover) IsAvailable(ctx context.Context) bool {
	return f.primary.IsAvailable(ctx) || f.fallback.IsAvailable(ctx)
}

// Close is a no-op; the registry owns both providers.
func (f *failover) Close() error { return nil }

func shouldFailover(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	code, ok := CodeOf(err)
	if !ok {
		return true
	}
	switch code {
	case ErrUnavailable, ErrRateLimit, ErrTimeout:
		return true
	}
	return false
}
