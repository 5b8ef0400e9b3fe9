package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// limited wraps a Provider with a token-bucket limiter.
type limited struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit caps calls to p at perMinute with the given burst.
func WithRateLimit(p Provider, perMinute, burst int) Provider {
	if perMinute <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &limited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (l *limited) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Code: ErrRateLimit, Message: "rate limit: " + err.Error()}
	}
	return nil
}

func (l *limited) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.Provider.Complete(ctx, req)
}

func (l *limited) CompleteStructured(ctx context.Context, req CompletionRequest, target interface{}) error {
	if err := l.wait(ctx); err != nil {
		return err
	}
	return l.Provider.CompleteStructured(ctx, req, target)
}
