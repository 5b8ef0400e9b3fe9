package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newJSONLogger(buf *bytes.Buffer, level Level) Logger {
	return NewLogger(&Config{
		Level:       level,
		ServiceName: "test-service",
		JSONFormat:  true,
		Output:      buf,
	})
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, "vidq", cfg.ServiceName)
	assert.False(t, cfg.JSONFormat)
	assert.NotNil(t, NewLogger(nil))
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	newJSONLogger(buf, LevelDebug).Info("test message", F("key", "value"))

	out := decode(t, buf)
	assert.Equal(t, "test message", out["message"])
	assert.Equal(t, "test-service", out["service_name"])
	assert.Equal(t, "value", out["key"])
	assert.Equal(t, "info", out["level"])
	assert.Contains(t, out, "time")
}

func TestLogger_AllLevels(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func(Logger)
	}{
		{"debug", func(l Logger) { l.Debug("m") }},
		{"info", func(l Logger) { l.Info("m") }},
		{"warn", func(l Logger) { l.Warn("m") }},
		{"error", func(l Logger) { l.Error("m") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.logFunc(newJSONLogger(buf, LevelDebug))
			assert.Equal(t, tt.name, decode(t, buf)["level"])
		})
	}
}

func TestLogger_WithFieldsAndContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSONLogger(buf, LevelInfo).With(F("component", "router"))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = WithRequestID(ctx, "req-456")
	ctx = WithVideoID(ctx, "dQw4w9WgXcQ")
	log.WithContext(ctx).Info("routed")

	out := decode(t, buf)
	assert.Equal(t, "router", out["component"])
	assert.Equal(t, "req-456", out["request_id"])
	assert.Equal(t, "dQw4w9WgXcQ", out["video_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", out["span_id"])
	assert.Equal(t, "req-456", RequestID(ctx))
}

func TestLogger_WithContext_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	newJSONLogger(buf, LevelInfo).WithContext(context.Background()).Info("no trace")

	out := decode(t, buf)
	assert.NotContains(t, out, "trace_id")
	assert.NotContains(t, out, "request_id")
}

func TestLogger_FieldTypes(t *testing.T) {
	buf := &bytes.Buffer{}
	newJSONLogger(buf, LevelInfo).Info("types",
		F("string_field", "hello"),
		F("int_field", 42),
		F("float_field", 3.14),
		F("bool_field", true),
		F("duration_field", 5*time.Second),
		F("orders", []int{1, 2}),
		Err(errors.New("boom")),
	)

	out := decode(t, buf)
	assert.Equal(t, "hello", out["string_field"])
	assert.Equal(t, float64(42), out["int_field"])
	assert.Equal(t, 3.14, out["float_field"])
	assert.Equal(t, true, out["bool_field"])
	assert.Equal(t, []interface{}{float64(1), float64(2)}, out["orders"])
	assert.Equal(t, "boom", out["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newJSONLogger(buf, LevelWarn)

	log.Debug("debug - hidden")
	log.Info("info - hidden")
	log.Warn("warn - shown")
	log.Error("error - shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "warn - shown")
	assert.Contains(t, lines[1], "error - shown")
}

func TestLogger_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	NewLogger(&Config{Level: LevelInfo, ServiceName: "vidq", Output: buf}).Info("console output", F("user", "alice"))

	assert.Contains(t, buf.String(), "console output")
	assert.Contains(t, buf.String(), "INF")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Info("discarded", F("k", "v"))
	assert.Equal(t, log, log.With(F("a", 1)))
	assert.Equal(t, log, log.WithContext(context.Background()))
}
