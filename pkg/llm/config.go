package llm

import (
	"fmt"
	"strings"
	"time"
)

// Provider kinds accepted in Config.Provider.
const (
	KindOpenAI = "openai"
	KindHTTP   = "http"
)

// Config configures a provider.
type Config struct {
	// Provider is "openai" (openai-go client) or "http" (any
	// OpenAI-compatible server such as vLLM, llama.cpp or Ollama).
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`

	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"-" yaml:"-"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries applies to structured completions that return invalid JSON.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestsPerMinute caps outgoing calls (0 = unlimited).
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int `json:"burst" yaml:"burst"`

	// Fallback is tried when this provider fails with a retryable error.
	Fallback *Config `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// DefaultConfig returns the default provider configuration.
func DefaultConfig() Config {
	return Config{
		Provider:          KindOpenAI,
		Model:             "gpt-4o-mini",
		Timeout:           60 * time.Second,
		MaxRetries:        2,
		RequestsPerMinute: 60,
		Burst:             5,
	}
}

// Validate fills defaults and rejects unknown providers.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = KindOpenAI
	}
	switch c.Provider {
	case KindOpenAI:
	case KindHTTP, "vllm", "ollama":
		c.Provider = KindHTTP
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:8000"
		}
	default:
		return fmt.Errorf("unknown llm provider %q (want openai or http)", c.Provider)
	}
	if c.Model == "" {
		c.Model = DefaultConfig().Model
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return nil
}

// New builds the provider described by cfg, rate limited when configured.
// When cfg.Fallback is set the result fails over to it.
func New(cfg Config) (Provider, error) {
	primary, err := newSingle(cfg)
	if err != nil || cfg.Fallback == nil {
		return primary, err
	}
	fallback, err := newSingle(*cfg.Fallback)
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("fallback provider: %w", err)
	}

	reg := NewProviderRegistry()
	reg.Register("primary", primary)
	reg.Register("fallback", fallback)
	reg.SetPrimary("primary")
	reg.SetFallback("fallback")
	p, err := reg.Provider()
	if err != nil {
		_ = reg.Close()
		return nil, err
	}
	return registryProvider{Provider: p, reg: reg}, nil
}

func newSingle(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var p Provider
	switch cfg.Provider {
	case KindHTTP:
		p = NewHTTPProvider(cfg)
	default:
		if cfg.APIKey == "" {
			return nil, &Error{Code: ErrAuth, Message: "no API key configured for the openai provider"}
		}
		p = NewOpenAIProvider(cfg)
	}
	if cfg.RequestsPerMinute > 0 {
		p = WithRateLimit(p, cfg.RequestsPerMinute, cfg.Burst)
	}
	return p, nil
}

// registryProvider closes every provider in reg.
type registryProvider struct {
	Provider
	reg *ProviderRegistry
}

func (p registryProvider) Close() error { return p.reg.Close() }
