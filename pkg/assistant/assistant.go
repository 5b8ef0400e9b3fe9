// Package assistant answers questions about YouTube videos. It resolves the
// video, loads its transcript, routes the question to an intent and runs
// the analyze-then-summarize pipeline over the selected chunks.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/otherjamesbrown/vidq/pkg/analysis"
	"github.com/otherjamesbrown/vidq/pkg/contentid"
	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/history"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/observability"
	"github.com/otherjamesbrown/vidq/pkg/router"
	"github.com/otherjamesbrown/vidq/pkg/scrape"
	"github.com/otherjamesbrown/vidq/pkg/store"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/pkg/youtube"
)

// Fixed replies for questions that cannot be answered from a transcript.
const (
	ScrapeQueuedMessage    = "The transcript for this video is being fetched. Please ask again in a minute or two."
	ScrapeFailedMessage    = "I couldn't start fetching the transcript for this video. Please try again later."
	NoTranscriptMessage    = "No transcript is available for this video yet."
	EmptyTranscriptMessage = "This video's transcript is empty, so there is nothing to answer from."
)

// AskRequest is a question, optionally about a specific video.
type AskRequest struct {
	Query string `json:"query" validate:"required,max=4000"`
	// VideoID or VideoURL name the video. When both are empty the video is
	// looked for in Query.
	VideoID  string `json:"video_id,omitempty" validate:"omitempty,len=11"`
	VideoURL string `json:"video_url,omitempty" validate:"omitempty,max=2048"`
	// DurationSec overrides the duration estimate.
	DurationSec int `json:"duration_sec,omitempty" validate:"gte=0"`
}

// Answer is the reply to an AskRequest.
type Answer struct {
	ID         string        `json:"id"`
	VideoID    string        `json:"video_id,omitempty"`
	Intent     router.Intent `json:"intent"`
	Rule       string        `json:"rule,omitempty"`
	Outcome    string        `json:"outcome"`
	Text       string        `json:"answer"`
	KeyPoints  []string      `json:"key_points"`
	TimeRange  string        `json:"time_range,omitempty"`
	Topic      string        `json:"topic,omitempty"`
	Chunks     int           `json:"chunks"`
	DurationMs int64         `json:"duration_ms"`
}

// Resolution is the outcome of resolving and routing a question without
// calling a model.
type Resolution struct {
	VideoID  string                    `json:"video_id,omitempty"`
	Outcome  string                    `json:"outcome"`
	Message  string                    `json:"message,omitempty"`
	Decision router.Decision           `json:"decision"`
	Metadata *transcript.VideoMetadata `json:"metadata,omitempty"`
}

// Deps are the collaborators of an Assistant. Retriever, Router, Analyzer,
// Summarizer and Conversation are required.
type Deps struct {
	Retriever    store.Retriever
	Metadata     store.MetadataSource
	Router       *router.Router
	Analyzer     analysis.Analyzer
	Summarizer   analysis.Summarizer
	Conversation analysis.Conversation
	Scraper      scrape.Trigger
	History      history.Recorder
	Metrics      *observability.Metrics
	Tracer       *observability.Tracer
	Logger       logging.Logger
}

// Assistant answers questions. It is safe for concurrent use.
type Assistant struct {
	d Deps
}

// New validates deps and creates an Assistant.
func New(d Deps) (*Assistant, error) {
	var missing []string
	if d.Retriever == nil {
		missing = append(missing, "retriever")
	}
	if d.Router == nil {
		missing = append(missing, "router")
	}
	if d.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if d.Summarizer == nil {
		missing = append(missing, "summarizer")
	}
	if d.Conversation == nil {
		missing = append(missing, "conversation")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: assistant missing %s", vqerrors.ErrNotConfigured, strings.Join(missing, ", "))
	}
	if d.Tracer == nil {
		d.Tracer = observability.NewTracer()
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	return &Assistant{d: d}, nil
}

// VideoID returns the video a request is about, or "".
func VideoID(req AskRequest) string {
	if id := strings.TrimSpace(req.VideoID); id != "" {
		if youtube.IsVideoID(id) {
			return id
		}
		return youtube.ExtractVideoID(id)
	}
	if req.VideoURL != "" {
		return youtube.ExtractVideoID(req.VideoURL)
	}
	return youtube.FindVideoID(req.Query)
}

// Resolve finds the video, loads its transcript and routes the question.
// Failures of collaborators degrade to a message rather than an error.
func (a *Assistant) Resolve(ctx context.Context, req AskRequest) (*Resolution, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty question", vqerrors.ErrValidation)
	}

	videoID := VideoID(req)
	if videoID == "" {
		d := a.route(ctx, req.Query, router.VideoContext{})
		return &Resolution{Outcome: observability.OutcomePassthrough, Decision: d}, nil
	}
	ctx = logging.WithVideoID(ctx, videoID)
	log := a.d.Logger.WithContext(ctx)

	chunks := a.retrieve(ctx, videoID)
	if len(chunks) == 0 {
		outcome, msg := a.scrape(ctx, videoID)
		return &Resolution{
			VideoID:  videoID,
			Outcome:  outcome,
			Message:  msg,
			Decision: router.Decision{VideoID: videoID, Chunks: []transcript.Chunk{}},
		}, nil
	}
	if transcript.Blank(chunks) {
		log.Info("Skipping video with empty transcript", logging.F("chunks", len(chunks)))
		a.countError(vqerrors.ErrEmptyTranscript, vqerrors.StageRetrieve)
		return &Resolution{
			VideoID:  videoID,
			Outcome:  observability.OutcomeEmptyTranscript,
			Message:  EmptyTranscriptMessage,
			Decision: router.Decision{VideoID: videoID, Chunks: []transcript.Chunk{}},
		}, nil
	}

	meta := a.metadata(ctx, videoID)
	d := a.route(ctx, req.Query, router.VideoContext{
		VideoID:     videoID,
		Chunks:      chunks,
		Metadata:    meta,
		DurationSec: req.DurationSec,
	})

	res := &Resolution{VideoID: videoID, Decision: d, Metadata: meta, Outcome: observability.OutcomeAnswered}
	if d.Message != "" {
		res.Outcome = observability.OutcomeMessage
		res.Message = d.Message
	}
	return res, nil
}

// Ask answers a question end to end.
func (a *Assistant) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	start := time.Now()
	ctx, span := a.d.Tracer.StartAsk(ctx, VideoID(req))
	defer span.End()

	answer, err := a.ask(ctx, req)
	elapsed := time.Since(start)

	outcome := observability.OutcomeError
	if answer != nil {
		answer.DurationMs = elapsed.Milliseconds()
		if err == nil {
			outcome = answer.Outcome
		}
		span.SetAttributes(
			attribute.String(observability.AttrIntent, string(answer.Intent)),
			attribute.Int(observability.AttrChunks, answer.Chunks),
		)
	}
	if a.d.Metrics != nil {
		a.d.Metrics.RecordAsk(outcome, elapsed.Seconds())
	}
	if err != nil {
		qe := vqerrors.ClassifyError(err, "")
		observability.Fail(span, err, string(qe.Code))
		a.countError(qe.Code, qe.Stage)
		a.record(ctx, req, answer, string(qe.Code), elapsed)
		return nil, qe
	}
	a.record(ctx, req, answer, "", elapsed)
	return answer, nil
}

func (a *Assistant) ask(ctx context.Context, req AskRequest) (*Answer, error) {
	res, err := a.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		ID:        contentid.New(contentid.KindAnswer),
		VideoID:   res.VideoID,
		Intent:    res.Decision.Intent,
		Rule:      res.Decision.Rule,
		Outcome:   res.Outcome,
		KeyPoints: []string{},
		TimeRange: res.Decision.TimeRange,
		Topic:     res.Decision.Topic,
		Chunks:    len(res.Decision.Chunks),
	}

	switch {
	case res.Outcome == observability.OutcomePassthrough:
		text, err := a.d.Conversation.Converse(ctx, req.Query)
		if err != nil {
			return answer, stageError(vqerrors.StagePassthrough, err)
		}
		answer.Text = text
		return answer, nil

	case res.Message != "", !res.Decision.NeedsAnalysis():
		answer.Text = res.Message
		return answer, nil
	}

	result, err := a.analyze(ctx, req.Query, res)
	if err != nil {
		return answer, err
	}
	answer.KeyPoints = result.KeyPoints
	if result.TimeRange != "" {
		answer.TimeRange = result.TimeRange
	}
	answer.Text = a.summarize(ctx, req.Query, result)
	return answer, nil
}

func (a *Assistant) route(ctx context.Context, query string, video router.VideoContext) router.Decision {
	ctx, span := a.d.Tracer.Start(ctx, observability.SpanRoute)
	defer span.End()

	start := time.Now()
	d := a.d.Router.Route(ctx, query, video)
	if a.d.Metrics != nil {
		a.d.Metrics.RecordRoute(string(d.Intent), d.Rule, len(d.Chunks), time.Since(start).Seconds())
	}
	span.SetAttributes(
		attribute.String(observability.AttrIntent, string(d.Intent)),
		attribute.String(observability.AttrRule, d.Rule),
		attribute.Int(observability.AttrChunks, len(d.Chunks)),
	)
	return d
}

// retrieve loads every chunk of the video. Errors are logged and counted
// and then treated as an empty transcript store.
func (a *Assistant) retrieve(ctx context.Context, videoID string) []transcript.Chunk {
	ctx, span := a.d.Tracer.Start(ctx, observability.SpanRetrieve, attribute.String(observability.AttrVideoID, videoID))
	defer span.End()

	chunks, err := a.d.Retriever.Retrieve(ctx, "", 0, store.Filter{VideoID: videoID})
	if err != nil {
		qe := vqerrors.ClassifyError(err, vqerrors.StageRetrieve)
		observability.Fail(span, err, string(qe.Code))
		a.d.Logger.WithContext(ctx).Warn("Transcript retrieval failed", logging.Err(err))
		if a.d.Metrics != nil {
			a.d.Metrics.RecordRetrievalFailure(vqerrors.StageRetrieve)
		}
		a.countError(qe.Code, vqerrors.StageRetrieve)
		return nil
	}
	return chunks
}

func (a *Assistant) metadata(ctx context.Context, videoID string) *transcript.VideoMetadata {
	if a.d.Metadata == nil {
		return nil
	}
	meta, err := a.d.Metadata.Metadata(ctx, videoID)
	if err != nil {
		if !vqerrors.IsNotFound(err) {
			a.d.Logger.WithContext(ctx).Warn("Metadata lookup failed", logging.Err(err))
			if a.d.Metrics != nil {
				a.d.Metrics.RecordRetrievalFailure(vqerrors.StageMetadata)
			}
		}
		return nil
	}
	return meta
}

func (a *Assistant) scrape(ctx context.Context, videoID string) (outcome, message string) {
	log := a.d.Logger.WithContext(ctx)
	if a.d.Scraper == nil {
		log.Info("No transcript and no scraper configured")
		return observability.OutcomeMessage, NoTranscriptMessage
	}
	if err := a.d.Scraper.TriggerScrape(ctx, youtube.WatchURL(videoID)); err != nil {
		qe := vqerrors.ClassifyError(err, vqerrors.StageScrape)
		log.Warn("Scrape trigger failed", logging.Err(err), logging.F("code", string(qe.Code)))
		if a.d.Metrics != nil {
			a.d.Metrics.RecordScrape("failed")
		}
		a.countError(qe.Code, vqerrors.StageScrape)
		return observability.OutcomeError, ScrapeFailedMessage
	}
	if a.d.Metrics != nil {
		a.d.Metrics.RecordScrape("queued")
	}
	return observability.OutcomeScrapeQueued, ScrapeQueuedMessage
}

func (a *Assistant) analyze(ctx context.Context, query string, res *Resolution) (*analysis.Result, error) {
	ctx, span := a.d.Tracer.Start(ctx, observability.SpanAnalyze,
		attribute.String(observability.AttrIntent, string(res.Decision.Intent)))
	defer span.End()

	result, err := a.d.Analyzer.Analyze(ctx, analysis.Request{
		Query:     query,
		Intent:    res.Decision.Intent,
		Chunks:    res.Decision.Chunks,
		Metadata:  res.Metadata,
		TimeRange: res.Decision.TimeRange,
		Topic:     res.Decision.Topic,
	})
	if err != nil {
		observability.Fail(span, err, "")
		return nil, stageError(vqerrors.StageAnalyze, err)
	}
	if result.KeyPoints == nil {
		result.KeyPoints = []string{}
	}
	return result, nil
}

// summarize turns the analysis into prose. A failed summary falls back to
// the analysis answer.
func (a *Assistant) summarize(ctx context.Context, query string, result *analysis.Result) string {
	ctx, span := a.d.Tracer.Start(ctx, observability.SpanSummarize)
	defer span.End()

	text, err := a.d.Summarizer.SummarizeForUser(ctx, result, query)
	if err != nil {
		qe := vqerrors.ClassifyError(err, vqerrors.StageSummarize)
		observability.Fail(span, err, string(qe.Code))
		a.countError(qe.Code, vqerrors.StageSummarize)
		a.d.Logger.WithContext(ctx).Warn("Summary failed, returning analysis", logging.Err(err))
		return result.Answer
	}
	return text
}

func (a *Assistant) record(ctx context.Context, req AskRequest, answer *Answer, errCode string, elapsed time.Duration) {
	if a.d.History == nil {
		return
	}
	e := history.Entry{
		Query:      req.Query,
		Outcome:    observability.OutcomeError,
		ErrorCode:  errCode,
		DurationMs: int(elapsed.Milliseconds()),
		CreatedAt:  time.Now().UTC(),
	}
	if answer != nil {
		e.AnswerID = answer.ID
		e.VideoID = answer.VideoID
		e.Intent = string(answer.Intent)
		e.Rule = answer.Rule
		e.TimeRange = answer.TimeRange
		e.Topic = answer.Topic
		e.Chunks = answer.Chunks
		e.KeyPoints = answer.KeyPoints
		if errCode == "" {
			e.Outcome = answer.Outcome
		}
	}
	if e.AnswerID == "" {
		e.AnswerID = contentid.New(contentid.KindAnswer)
	}
	if e.Intent == "" {
		e.Intent = "unknown"
	}
	if err := a.d.History.Record(ctx, e); err != nil {
		a.d.Logger.WithContext(ctx).Warn("Failed to record history", logging.Err(err))
	}
}

func (a *Assistant) countError(code vqerrors.ErrorCode, stage string) {
	if a.d.Metrics != nil {
		a.d.Metrics.RecordError(string(code), stage)
	}
}

func stageError(stage string, err error) error {
	return vqerrors.ClassifyError(err, stage)
}
