package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"tutordesk/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel(" warning ", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("verbose", slog.LevelDebug))
}

func TestNewWithServiceContext_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithServiceContext("tutordesk", "1.2.3", logger.Options{Env: "prod", Output: &buf})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	log.InfoContext(ctx, "student registered", "email", "jane@example.com")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "student registered", record["msg"])
	assert.Equal(t, "tutordesk", record["service"])
	assert.Equal(t, "1.2.3", record["version"])
	assert.Equal(t, "prod", record["environment"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", record["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", record["span_id"])
}

func TestNew_LocalTextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Env: "local", Level: "warn", Output: &buf})

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Error("boom")
	assert.Contains(t, buf.String(), "\x1b[31mboom\x1b[0m")
}
