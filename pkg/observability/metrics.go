// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for question answering.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ask outcomes.
const (
	OutcomeAnswered        = "answered"
	OutcomePassthrough     = "passthrough"
	OutcomeMessage         = "message"
	OutcomeScrapeQueued    = "scrape_queued"
	OutcomeEmptyTranscript = "empty_transcript"
	OutcomeError           = "error"
)

// Metrics holds the Prometheus collectors for vidq.
type Metrics struct {
	AsksTotal   *prometheus.CounterVec
	AskSeconds  *prometheus.HistogramVec
	IntentTotal *prometheus.CounterVec
	// RouteSeconds is the time spent classifying and selecting chunks.
	RouteSeconds   *prometheus.HistogramVec
	SelectedChunks *prometheus.HistogramVec

	LLMCallsTotal  *prometheus.CounterVec
	LLMLatency     *prometheus.HistogramVec
	LLMTokensTotal *prometheus.CounterVec

	RetrievalFailures *prometheus.CounterVec
	ScrapeTriggers    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AsksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_asks_total",
				Help: "Questions answered, by outcome",
			},
			[]string{"outcome"},
		),
		AskSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidq_ask_seconds",
				Help:    "End to end latency of a question",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		IntentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_intents_total",
				Help: "Routed questions by intent and matching rule",
			},
			[]string{"intent", "rule"},
		),
		RouteSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidq_route_seconds",
				Help:    "Intent resolution latency",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"intent"},
		),
		SelectedChunks: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidq_selected_chunks",
				Help:    "Chunks selected for analysis",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
			},
			[]string{"intent"},
		),
		LLMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_llm_calls_total",
				Help: "Model calls by stage and status",
			},
			[]string{"stage", "model", "status"},
		),
		LLMLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vidq_llm_latency_seconds",
				Help:    "Model call latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
			},
			[]string{"stage", "model"},
		),
		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_llm_tokens_total",
				Help: "Tokens consumed",
			},
			[]string{"direction", "model"},
		),
		RetrievalFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_retrieval_failures_total",
				Help: "Transcript or metadata lookups that failed",
			},
			[]string{"stage"},
		),
		ScrapeTriggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_scrape_triggers_total",
				Help: "Transcript fetches requested",
			},
			[]string{"status"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vidq_errors_total",
				Help: "Classified errors by code and stage",
			},
			[]string{"code", "stage"},
		),
	}
}

// RecordAsk records a finished question.
func (m *Metrics) RecordAsk(outcome string, seconds float64) {
	m.AsksTotal.WithLabelValues(outcome).Inc()
	m.AskSeconds.WithLabelValues(outcome).Observe(seconds)
}

// RecordRoute records a routing decision.
func (m *Metrics) RecordRoute(intent, rule string, chunks int, seconds float64) {
	m.IntentTotal.WithLabelValues(intent, rule).Inc()
	m.RouteSeconds.WithLabelValues(intent).Observe(seconds)
	m.SelectedChunks.WithLabelValues(intent).Observe(float64(chunks))
}

// RecordLLMCall records a model call.
func (m *Metrics) RecordLLMCall(stage, model, status string, seconds float64) {
	m.LLMCallsTotal.WithLabelValues(stage, model, status).Inc()
	m.LLMLatency.WithLabelValues(stage, model).Observe(seconds)
}

// RecordTokens records token usage.
func (m *Metrics) RecordTokens(model string, prompt, completion int) {
	if prompt > 0 {
		m.LLMTokensTotal.WithLabelValues("input", model).Add(float64(prompt))
	}
	if completion > 0 {
		m.LLMTokensTotal.WithLabelValues("output", model).Add(float64(completion))
	}
}

// RecordRetrievalFailure counts a failed lookup.
func (m *Metrics) RecordRetrievalFailure(stage string) {
	m.RetrievalFailures.WithLabelValues(stage).Inc()
}

// RecordScrape counts a scrape request.
func (m *Metrics) RecordScrape(status string) {
	m.ScrapeTriggers.WithLabelValues(status).Inc()
}

// RecordError counts a classified error.
func (m *Metrics) RecordError(code, stage string) {
	m.ErrorsTotal.WithLabelValues(code, stage).Inc()
}
