package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger returns a JSON logger writing into the returned buffer
func bufferLogger() (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(&buf), zapcore.DebugLevel)
	return zap.New(core), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestFromContext(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, FromContext(WithContext(context.Background(), base)))

	assert.NotNil(t, FromContext(context.Background()))
	assert.NotNil(t, FromContext(WithContext(context.Background(), nil)))
}

func TestWithMutation(t *testing.T) {
	base, buf := bufferLogger()

	ctx, l := WithMutation(context.Background(), base, Mutation{
		Operation:      "settle_payment",
		TenantID:       "tenant-1",
		ActorID:        "svc-payments",
		IdempotencyKey: "pay-42",
	})
	assert.Same(t, l, FromContext(ctx))
	m, ok := MutationFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "pay-42", m.IdempotencyKey)

	l.Info("settled")
	line := decodeLine(t, buf)
	assert.Equal(t, "settle_payment", line["operation"])
	assert.Equal(t, "tenant-1", line["tenant_id"])
	assert.Equal(t, "svc-payments", line["actor_id"])
	assert.Equal(t, "pay-42", line["idempotency_key"])
	assert.NotContains(t, line, "request_id")
}

func TestMutationFromContext_Missing(t *testing.T) {
	_, ok := MutationFromContext(context.Background())
	assert.False(t, ok)
}

func TestWithMutation_NilLogger(t *testing.T) {
	ctx, l := WithMutation(context.Background(), nil, Mutation{Operation: "compensate_ledger"})
	require.NotNil(t, l)
	assert.NotPanics(t, func() { L(ctx).Info("ignored") })
}

func TestL_AddsTraceFields(t *testing.T) {
	base, buf := bufferLogger()
	ctx := WithContext(context.Background(), base)

	L(ctx).Info("no span")
	assert.NotContains(t, decodeLine(t, buf), "trace_id")
	buf.Reset()

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(ctx, "settlement.Settle")
	defer span.End()

	L(ctx).Info("with span")
	line := decodeLine(t, buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])
}

func TestTraceFields(t *testing.T) {
	assert.Empty(t, TraceFields(context.Background()))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "ledger.Post")
	defer span.End()

	fields := TraceFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, "span_id", fields[1].Key)
}
