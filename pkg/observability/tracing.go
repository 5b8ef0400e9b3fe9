package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name for vidq spans.
const TracerName = "vidq"

// Span attribute keys
const (
	AttrVideoID    = "video_id"
	AttrIntent     = "intent"
	AttrRule       = "rule"
	AttrChunks     = "chunks"
	AttrStage      = "stage"
	AttrModel      = "model"
	AttrInputTok   = "input_tokens"
	AttrOutputTok  = "output_tokens"
	AttrDurationMs = "duration_ms"
	AttrErrorCode  = "error_code"
)

// Span names
const (
	SpanAsk       = "vidq.ask"
	SpanRetrieve  = "vidq.retrieve"
	SpanRoute     = "vidq.route"
	SpanAnalyze   = "vidq.analyze"
	SpanSummarize = "vidq.summarize"
	SpanLLMCall   = "vidq.llm_call"
)

// Tracer starts vidq spans on the global tracer provider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartAsk starts the root span for a question.
func (t *Tracer) StartAsk(ctx context.Context, videoID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAsk, trace.WithAttributes(attribute.String(AttrVideoID, videoID)))
}

// Start starts a child span for a pipeline stage.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartLLM starts a span for a model call.
func (t *Tracer) StartLLM(ctx context.Context, stage, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanLLMCall,
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
			attribute.String(AttrModel, model),
		),
	)
}

// Fail records err on span.
func Fail(span trace.Span, err error, code string) {
	span.SetStatus(codes.Error, err.Error())
	if code != "" {
		span.SetAttributes(attribute.String(AttrErrorCode, code))
	}
	span.RecordError(err)
}
