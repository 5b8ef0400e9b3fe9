// Package router decides which query intent a question about a video falls
// under and which transcript chunks answer it.
package router

import (
	"context"

	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/segments"
	"github.com/otherjamesbrown/vidq/pkg/transcript"
	"github.com/otherjamesbrown/vidq/services/search/query"
)

// Intent is the classification of a question.
type Intent string

const (
	IntentTimeRange   Intent = "time_range"
	IntentTimestamp   Intent = "timestamp"
	IntentTopic       Intent = "topic"
	IntentSentiment   Intent = "sentiment"
	IntentMetadata    Intent = "metadata"
	IntentFullSummary Intent = "full_summary"
	IntentPassthrough Intent = "passthrough"
)

// AllIntents lists every intent in routing priority order.
var AllIntents = []Intent{
	IntentPassthrough,
	IntentTimeRange,
	IntentTimestamp,
	IntentTopic,
	IntentSentiment,
	IntentMetadata,
	IntentFullSummary,
}

// MetadataUnavailableMessage is returned for metadata questions about a
// video without metadata.
const MetadataUnavailableMessage = "Metadata for this video is not available."

// VideoContext is what the router knows about the video being discussed.
type VideoContext struct {
	VideoID  string
	Chunks   []transcript.Chunk
	Metadata *transcript.VideoMetadata
	// DurationSec overrides the duration taken from metadata or chunks.
	DurationSec int
}

// Decision is the outcome of routing one question.
type Decision struct {
	Intent  Intent             `json:"intent"`
	Rule    string             `json:"rule,omitempty"`
	VideoID string             `json:"video_id,omitempty"`
	Chunks  []transcript.Chunk `json:"chunks"`
	// Reference is the resolved time reference for time intents.
	Reference   query.TimeReference `json:"-"`
	TimeRange   string              `json:"time_range,omitempty"`
	Topic       string              `json:"topic,omitempty"`
	DurationSec int                 `json:"duration_sec"`
	// Message is a fixed reply that replaces model analysis.
	Message string `json:"message,omitempty"`
}

// NeedsAnalysis reports whether the decision should go through the
// analyze-then-summarize pipeline.
func (d Decision) NeedsAnalysis() bool {
	return d.Intent != IntentPassthrough && d.Message == ""
}

// TopicMatcher performs topic-filtered retrieval over a video's chunks.
type TopicMatcher interface {
	MatchTopic(ctx context.Context, videoID, topic string, chunks []transcript.Chunk) ([]transcript.Chunk, error)
}

// request is the per-call state handed to each rule.
type request struct {
	utterance string
	video     VideoContext
	duration  int
}

// rule is one (predicate, handler) pair. apply reports false to pass the
// question on to the next rule.
type rule struct {
	name  string
	apply func(ctx context.Context, req *request) (Decision, bool)
}

// Router applies an ordered list of rules. It holds only construction-time
// configuration and is safe for concurrent use.
type Router struct {
	parser   *query.Parser
	selector *segments.Selector
	topics   TopicMatcher
	logger   logging.Logger
	rules    []rule
}

// Option configures a Router.
type Option func(*Router)

// WithTopicMatcher replaces the keyword topic matcher.
func WithTopicMatcher(m TopicMatcher) Option {
	return func(r *Router) {
		if m != nil {
			r.topics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithParser sets the parser, which also fixes the default duration.
func WithParser(p *query.Parser) Option {
	return func(r *Router) {
		if p != nil {
			r.parser = p
		}
	}
}

// New creates a Router with the default rule order.
func New(opts ...Option) *Router {
	r := &Router{
		parser: query.NewParser(),
		topics: KeywordMatcher{},
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.selector = segments.NewSelector(r.parser.DefaultDuration())
	r.rules = []rule{
		{"no_video", r.passthroughRule},
		{"time_range", r.rangeRule},
		{"timestamp", r.pointRule},
		{"topic", r.topicRule},
		{"sentiment", r.sentimentRule},
		{"metadata", r.metadataRule},
		{"full_summary", r.summaryRule},
	}
	return r
}

// Parser returns the parser the router resolves time phrases with.
func (r *Router) Parser() *query.Parser {
	return r.parser
}

// Route classifies an utterance and selects the chunks that answer it.
// Rules run in priority order and the first that applies wins.
func (r *Router) Route(ctx context.Context, utterance string, video VideoContext) Decision {
	req := &request{
		utterance: utterance,
		video:     video,
		duration:  r.Duration(video),
	}
	for _, rl := range r.rules {
		if d, ok := rl.apply(ctx, req); ok {
			d.Rule = rl.name
			d.VideoID = video.VideoID
			d.DurationSec = req.duration
			if d.Chunks == nil {
				d.Chunks = []transcript.Chunk{}
			}
			r.logger.WithContext(ctx).Debug("Routed question",
				logging.F("intent", string(d.Intent)),
				logging.F("rule", d.Rule),
				logging.F("chunks", len(d.Chunks)),
			)
			return d
		}
	}
	// full_summary always applies; this is unreachable with the default rules.
	return Decision{Intent: IntentFullSummary, VideoID: video.VideoID, Chunks: video.Chunks, DurationSec: req.duration}
}

// Duration returns the duration estimate for a video: explicit override,
// then metadata, then the end of the last timed chunk, then the default.
func (r *Router) Duration(video VideoContext) int {
	if video.DurationSec > 0 {
		return video.DurationSec
	}
	if video.Metadata != nil && video.Metadata.DurationSec > 0 {
		return video.Metadata.DurationSec
	}
	last := 0.0
	for _, c := range video.Chunks {
		if c.HasTiming() && *c.EndSec > last {
			last = *c.EndSec
		}
	}
	if last > 0 {
		return int(last + 0.5)
	}
	return r.parser.DefaultDuration()
}

func (r *Router) passthroughRule(_ context.Context, req *request) (Decision, bool) {
	if req.video.VideoID != "" {
		return Decision{}, false
	}
	return Decision{Intent: IntentPassthrough}, true
}

func (r *Router) rangeRule(_ context.Context, req *request) (Decision, bool) {
	rng, ok := r.parser.ExtractRange(req.utterance, req.duration)
	if !ok {
		return Decision{}, false
	}
	rng = rng.Clamp(req.duration)
	selected := r.selector.SelectByRange(req.video.Chunks, rng.Start, rng.End, req.duration)
	if len(selected) == 0 {
		return Decision{}, false
	}
	return Decision{
		Intent:    IntentTimeRange,
		Chunks:    selected,
		Reference: rng,
		TimeRange: rng.String(),
	}, true
}

func (r *Router) pointRule(_ context.Context, req *request) (Decision, bool) {
	ref := r.parser.ExtractPoint(req.utterance)
	if ref.Kind() == query.KindNone {
		return Decision{}, false
	}
	selected := r.selector.Select(req.video.Chunks, ref, req.duration)
	if len(selected) == 0 {
		return Decision{}, false
	}
	return Decision{
		Intent:    IntentTimestamp,
		Chunks:    selected,
		Reference: ref,
		TimeRange: ref.String(),
	}, true
}

func (r *Router) topicRule(ctx context.Context, req *request) (Decision, bool) {
	topic := r.parser.ExtractTopic(req.utterance)
	if topic == "" {
		return Decision{}, false
	}
	matched, err := r.topics.MatchTopic(ctx, req.video.VideoID, topic, req.video.Chunks)
	if err != nil {
		r.logger.WithContext(ctx).Warn("Topic lookup failed",
			logging.F("topic", topic),
			logging.Err(err),
		)
		return Decision{}, false
	}
	if len(matched) == 0 {
		return Decision{}, false
	}
	return Decision{Intent: IntentTopic, Chunks: matched, Topic: topic}, true
}

func (r *Router) sentimentRule(_ context.Context, req *request) (Decision, bool) {
	if !r.parser.IsSentimentQuery(req.utterance) {
		return Decision{}, false
	}
	return Decision{Intent: IntentSentiment, Chunks: req.video.Chunks}, true
}

func (r *Router) metadataRule(_ context.Context, req *request) (Decision, bool) {
	if !r.parser.IsMetadataQuery(req.utterance) {
		return Decision{}, false
	}
	if req.video.Metadata == nil {
		return Decision{Intent: IntentMetadata, Message: MetadataUnavailableMessage}, true
	}
	return Decision{Intent: IntentMetadata}, true
}

func (r *Router) summaryRule(_ context.Context, req *request) (Decision, bool) {
	return Decision{Intent: IntentFullSummary, Chunks: req.video.Chunks}, true
}
