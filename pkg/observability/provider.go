package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/llm"
)

type instrumented struct {
	llm.Provider
	metrics *Metrics
	tracer  *Tracer
}

// InstrumentProvider wraps p so every call is timed, counted and traced.
func InstrumentProvider(p llm.Provider, m *Metrics, t *Tracer) llm.Provider {
	if t == nil {
		t = NewTracer()
	}
	return &instrumented{Provider: p, metrics: m, tracer: t}
}

func (i *instrumented) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := i.tracer.StartLLM(ctx, req.Stage, i.Name())
	defer span.End()

	start := time.Now()
	resp, err := i.Provider.Complete(ctx, req)
	i.observe(req.Stage, err, time.Since(start))
	if err != nil {
		Fail(span, err, string(vqerrors.ClassifyError(err, req.Stage).Code))
		return nil, err
	}
	span.SetAttributes(
		attribute.Int(AttrInputTok, resp.TokensUsed.Prompt),
		attribute.Int(AttrOutputTok, resp.TokensUsed.Completion),
		attribute.Int(AttrDurationMs, resp.LatencyMs),
	)
	if i.metrics != nil {
		i.metrics.RecordTokens(i.Name(), resp.TokensUsed.Prompt, resp.TokensUsed.Completion)
	}
	return resp, nil
}

func (i *instrumented) CompleteStructured(ctx context.Context, req llm.CompletionRequest, target interface{}) error {
	ctx, span := i.tracer.StartLLM(ctx, req.Stage, i.Name())
	defer span.End()

	start := time.Now()
	err := i.Provider.CompleteStructured(ctx, req, target)
	i.observe(req.Stage, err, time.Since(start))
	if err != nil {
		Fail(span, err, string(vqerrors.ClassifyError(err, req.Stage).Code))
	}
	return err
}

func (i *instrumented) observe(stage string, err error, d time.Duration) {
	if i.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = string(vqerrors.ClassifyError(err, stage).Code)
	}
	i.metrics.RecordLLMCall(stage, i.Name(), status, d.Seconds())
}
