// Package logging is vidq's structured logger: a small interface over
// zerolog. Services log JSON; the CLI logs to a console writer on stderr so
// stdout stays clean for answers.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Level is a minimum severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// ParseLevel reads a level name such as VIDQ_LOG_LEVEL. Unknown names
// mean info.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l == "warning" {
		return LevelWarn
	}
	if _, ok := zerologLevels[l]; ok {
		return l
	}
	return LevelInfo
}

// Config holds logger configuration.
type Config struct {
	Level       Level
	ServiceName string
	// JSONFormat selects JSON lines; otherwise a human console format.
	JSONFormat bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig is the interactive CLI setup.
func DefaultConfig() *Config {
	return &Config{Level: LevelInfo, ServiceName: "vidq", Output: os.Stderr}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a Logger that adds fields to every entry.
	With(fields ...Field) Logger
	// WithContext returns a Logger tagged with the request, video and
	// trace IDs carried by ctx.
	WithContext(ctx context.Context) Logger

	Zerolog() zerolog.Logger
}

// Field is one key-value pair on a log entry.
type Field struct {
	Key   string
	Value any
}

// F creates a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err creates the conventional "error" field.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// pairs flattens fields into the key/value list zerolog's Fields accepts;
// zerolog picks the encoder for each value type.
func pairs(fields []Field) []any {
	out := make([]any, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

type zlogger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger. A nil cfg uses DefaultConfig.
func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONFormat {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zl := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service_name", cfg.ServiceName).
		Logger()
	return &zlogger{zl: zl}
}

func (l *zlogger) Zerolog() zerolog.Logger { return l.zl }

func (l *zlogger) Debug(msg string, fields ...Field) { l.zl.Debug().Fields(pairs(fields)).Msg(msg) }
func (l *zlogger) Info(msg string, fields ...Field)  { l.zl.Info().Fields(pairs(fields)).Msg(msg) }
func (l *zlogger) Warn(msg string, fields ...Field)  { l.zl.Warn().Fields(pairs(fields)).Msg(msg) }
func (l *zlogger) Error(msg string, fields ...Field) { l.zl.Error().Fields(pairs(fields)).Msg(msg) }

func (l *zlogger) With(fields ...Field) Logger {
	return &zlogger{zl: l.zl.With().Fields(pairs(fields)).Logger()}
}

func (l *zlogger) WithContext(ctx context.Context) Logger {
	zc := l.zl.With()
	if id := RequestID(ctx); id != "" {
		zc = zc.Str("request_id", id)
	}
	if id, _ := ctx.Value(videoIDKey{}).(string); id != "" {
		zc = zc.Str("video_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		zc = zc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	return &zlogger{zl: zc.Logger()}
}

type (
	requestIDKey struct{}
	videoIDKey   struct{}
)

// WithRequestID returns a context carrying a request ID for WithContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// WithVideoID returns a context carrying the video under discussion.
func WithVideoID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, videoIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type nopLogger struct{}

func (n nopLogger) Debug(string, ...Field)             {}
func (n nopLogger) Info(string, ...Field)              {}
func (n nopLogger) Warn(string, ...Field)              {}
func (n nopLogger) Error(string, ...Field)             {}
func (n nopLogger) With(...Field) Logger               { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (n nopLogger) Zerolog() zerolog.Logger            { return zerolog.Nop() }

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return nopLogger{}
}
