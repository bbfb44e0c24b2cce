package telemetry

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a metrics collector is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter is nil")

// SettlementMetrics records mutation outcomes, settled amounts and ledger
// postings for the settlement core.
type SettlementMetrics struct {
	logger *zap.Logger

	mutationsTotal   *Counter
	conflictsTotal   *Counter
	settlementsTotal *Counter
	postingsTotal    *Counter
	entriesTotal     *Counter
	paidAmount       *Histogram
	obligationAmount *Histogram
}

// NewSettlementMetrics creates the settlement instruments on meter.
func NewSettlementMetrics(meter metric.Meter, logger *zap.Logger) (*SettlementMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SettlementMetrics{logger: logger}
	var err error

	if sm.mutationsTotal, err = NewCounter(meter,
		"settlement_mutations_total",
		"Idempotent mutations by operation and outcome",
		"{mutations}",
	); err != nil {
		return nil, err
	}
	if sm.conflictsTotal, err = NewCounter(meter,
		"idempotency_conflicts_total",
		"Idempotency keys reused with a different payload",
		"{conflicts}",
	); err != nil {
		return nil, err
	}
	if sm.settlementsTotal, err = NewCounter(meter,
		"settlements_total",
		"Settlements applied",
		"{settlements}",
	); err != nil {
		return nil, err
	}
	if sm.postingsTotal, err = NewCounter(meter,
		"ledger_postings_total",
		"Ledger transactions posted by source type",
		"{transactions}",
	); err != nil {
		return nil, err
	}
	if sm.entriesTotal, err = NewCounter(meter,
		"ledger_entries_total",
		"Ledger entries written by source type",
		"{entries}",
	); err != nil {
		return nil, err
	}
	if sm.paidAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "settlement_paid_amount",
		Description: "Paid amount per settlement",
		Unit:        "{currency}",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.obligationAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "settlement_obligation_amount",
		Description: "Amount routed to each waterfall obligation",
		Unit:        "{currency}",
		Boundaries:  AmountBuckets,
	}); err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordMutation counts one idempotent protocol run.
func (m *SettlementMetrics) RecordMutation(ctx context.Context, operation, outcome string) {
	m.mutationsTotal.Inc(ctx, AttrOperation.String(operation), AttrOutcome.String(outcome))
	if outcome == "conflict" {
		m.conflictsTotal.Inc(ctx, AttrOperation.String(operation))
	}
}

// RecordSettlement observes the paid amount and its split.
func (m *SettlementMetrics) RecordSettlement(ctx context.Context, paid, fund, beneficiary decimal.Decimal) {
	m.settlementsTotal.Inc(ctx)
	m.paidAmount.Record(ctx, paid.InexactFloat64())
	m.obligationAmount.Record(ctx, fund.InexactFloat64(), AttrObligation.String("fund"))
	m.obligationAmount.Record(ctx, beneficiary.InexactFloat64(), AttrObligation.String("beneficiary"))
}

// RecordLedgerPosting counts one posted transaction and its entries.
func (m *SettlementMetrics) RecordLedgerPosting(ctx context.Context, sourceType string, entries int) {
	attr := AttrSourceType.String(sourceType)
	m.postingsTotal.Inc(ctx, attr)
	m.entriesTotal.Add(ctx, int64(entries), attr)
}
