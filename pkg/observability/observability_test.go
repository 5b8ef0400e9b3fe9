package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/otherjamesbrown/vidq/pkg/llm"
)

type fakeProvider struct {
	err error
}

func (f *fakeProvider) Name() string { return "fake-model" }
func (f *fakeProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: "ok", TokensUsed: llm.TokenUsage{Prompt: 12, Completion: 3, Total: 15}}, nil
}
func (f *fakeProvider) CompleteStructured(context.Context, llm.CompletionRequest, interface{}) error {
	return f.err
}
func (f *fakeProvider) IsAvailable(context.Context) bool { return true }
func (f *fakeProvider) Close() error                     { return nil }

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAsk(OutcomeAnswered, 1.2)
	m.RecordAsk(OutcomeAnswered, 0.4)
	m.RecordRoute("time_range", "time_range", 5, 0.001)
	m.RecordRetrievalFailure("retrieve")
	m.RecordScrape("queued")
	m.RecordError("timeout", "analyze")

	if got := testutil.ToFloat64(m.AsksTotal.WithLabelValues(OutcomeAnswered)); got != 2 {
		t.Errorf("asks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IntentTotal.WithLabelValues("time_range", "time_range")); got != 1 {
		t.Errorf("intents = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RetrievalFailures.WithLabelValues("retrieve")); got != 1 {
		t.Errorf("retrieval failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("timeout", "analyze")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestInstrumentProvider_Success(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	p := InstrumentProvider(&fakeProvider{}, m, nil)

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{Prompt: "hi", Stage: "analyze"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
	if got := testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("analyze", "fake-model", "ok")); got != 1 {
		t.Errorf("calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("input", "fake-model")); got != 12 {
		t.Errorf("input tokens = %v, want 12", got)
	}
	if p.Name() != "fake-model" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestInstrumentProvider_Failure(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	p := InstrumentProvider(&fakeProvider{err: &llm.Error{Code: llm.ErrRateLimit, Message: "slow down"}}, m, NewTracer())

	if _, err := p.Complete(context.Background(), llm.CompletionRequest{Stage: "summarize"}); err == nil {
		t.Fatal("expected error")
	}
	if err := p.CompleteStructured(context.Background(), llm.CompletionRequest{Stage: "summarize"}, nil); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("summarize", "fake-model", "rate_limit")); got != 2 {
		t.Errorf("rate limited calls = %v, want 2", got)
	}
}
