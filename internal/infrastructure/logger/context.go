package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	loggerKey   struct{}
	mutationKey struct{}
)

// Mutation identifies the command a log line belongs to. Empty fields are
// omitted from the logger.
type Mutation struct {
	Operation      string
	TenantID       string
	ActorID        string
	IdempotencyKey string
	RequestID      string
}

func (m Mutation) fields() []zap.Field {
	fields := make([]zap.Field, 0, 5)
	for _, f := range []struct{ key, value string }{
		{"operation", m.Operation},
		{"tenant_id", m.TenantID},
		{"actor_id", m.ActorID},
		{"idempotency_key", m.IdempotencyKey},
		{"request_id", m.RequestID},
	} {
		if f.value != "" {
			fields = append(fields, zap.String(f.key, f.value))
		}
	}
	return fields
}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// WithMutation tags logger with the fields of m and stores both in ctx.
// Code further down the call chain picks the logger up with L.
func WithMutation(ctx context.Context, logger *zap.Logger, m Mutation) (context.Context, *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	enriched := logger.With(m.fields()...)
	ctx = context.WithValue(ctx, mutationKey{}, m)
	return WithContext(ctx, enriched), enriched
}

// MutationFromContext returns the mutation recorded by WithMutation.
func MutationFromContext(ctx context.Context) (Mutation, bool) {
	m, ok := ctx.Value(mutationKey{}).(Mutation)
	return m, ok
}

// L returns the context logger with trace_id and span_id of the active span.
func L(ctx context.Context) *zap.Logger {
	logger := FromContext(ctx)
	if fields := TraceFields(ctx); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}

// TraceFields returns trace_id and span_id of the span in ctx, or nothing
// when ctx carries no valid span.
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
