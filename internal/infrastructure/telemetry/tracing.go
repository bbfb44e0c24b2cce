package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the service spans.
const TracerName = "anticipa/settlement"

// Span attribute keys. Metric attributes live in metrics.go as attribute.Key values.
const (
	SpanAttrTenantID       = "tenant_id"
	SpanAttrOperation      = "operation"
	SpanAttrIdempotencyKey = "idempotency_key"
	SpanAttrOutcome        = "outcome"
	SpanAttrReplayed       = "replayed"

	SpanAttrReceivableID   = "receivable_id"
	SpanAttrAllocationID   = "allocation_id"
	SpanAttrAnticipationID = "anticipation_request_id"
	SpanAttrSettlementID   = "settlement_id"
	SpanAttrAmount         = "amount"

	SpanAttrTxnID      = "ledger_txn_id"
	SpanAttrSourceType = "source_type"
	SpanAttrSourceID   = "source_id"
	SpanAttrEntryCount = "entry_count"
)

// StartServiceSpan opens an internal span named "{service}.{method}" on the
// global tracer provider. keyValues are alternating keys and values, as in
// SetAttributes. The caller ends the span.
func StartServiceSpan(ctx context.Context, service, method string, keyValues ...any) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, service+"."+method,
		trace.WithSpanKind(trace.SpanKindInternal))
	SetAttributes(span, keyValues...)
	return ctx, span
}

// SetAttributes sets alternating key/value pairs on span. Pairs whose key is
// not a string, and a trailing key without a value, are dropped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span == nil || len(keyValues) < 2 {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		if key, ok := keyValues[i].(string); ok {
			attrs = append(attrs, attributeOf(key, keyValues[i+1]))
		}
	}
	span.SetAttributes(attrs...)
}

// SetAttribute sets a single attribute on span.
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(attributeOf(key, value))
}

// RecordError records err on span and marks the span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func attributeOf(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
