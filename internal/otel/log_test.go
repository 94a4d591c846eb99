package otel

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTraceContextFrom_NoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestTraceContextFrom_ActiveSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "document.run")
	defer span.End()

	traceID, spanID := TraceContextFrom(ctx)
	assert.NotEmpty(t, traceID)
	assert.NotEmpty(t, spanID)
}

func TestLogTraceFields_NoPanic(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ev := logger.Info()
	LogTraceFields(context.Background())(ev)
}

func TestLogTraceFields_AddsCorrelationFields(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "document.run")
	defer span.End()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Func(LogTraceFields(ctx)).Msg("document_run_started")

	require.Contains(t, buf.String(), "trace_id")
	assert.Contains(t, buf.String(), "span_id")
}
