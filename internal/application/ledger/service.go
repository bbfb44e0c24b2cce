// Package ledger exposes the ledger poster and compensator as standalone
// operations, each running in its own unit of work.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/application/txscope"
	"github.com/anticipa/backend/internal/application/validation"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/telemetry"
)

// Metrics receives ledger observations
type Metrics interface {
	RecordLedgerPosting(ctx context.Context, sourceType string, entries int)
}

// EntryInput is one requested ledger line
type EntryInput struct {
	AccountCode    string          `json:"account_code" validate:"required"`
	Side           string          `json:"entry_side" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	CounterpartyID *uuid.UUID      `json:"counterparty_id"`
	Metadata       map[string]any  `json:"metadata"`
}

// PostRequest asks for one balanced transaction. A blank TxnID gets a generated one.
type PostRequest struct {
	TxnID            string       `json:"txn_id" validate:"max=64"`
	SourceType       string       `json:"source_type"`
	SourceID         string       `json:"source_id"`
	PaymentReference string       `json:"payment_reference" validate:"max=255"`
	PostedAt         time.Time    `json:"posted_at"`
	Entries          []EntryInput `json:"entries" validate:"omitempty,dive"`
}

// CompensateRequest asks for the reversal of a posted transaction
type CompensateRequest struct {
	OriginalTxnID         string    `json:"original_txn_id"`
	CompensationTxnID     string    `json:"compensation_txn_id"`
	CompensationReference string    `json:"compensation_reference"`
	Reason                string    `json:"reason" validate:"max=500"`
	SourceType            string    `json:"source_type"`
	SourceID              string    `json:"source_id"`
	PostedAt              time.Time `json:"posted_at"`
}

// PostingResult is returned for both fresh and replayed postings
type PostingResult struct {
	Transaction *ledger.Transaction
	Replayed    bool
}

// Service posts and compensates ledger transactions
type Service struct {
	scope       txscope.TransactionScope
	poster      *ledger.Poster
	compensator *ledger.Compensator
	newTxnID    func() string
	isDuplicate func(error) bool
	metrics     Metrics
	logger      *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithTxnIDGenerator overrides transaction id generation for blank ids
func WithTxnIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newTxnID = fn
	}
}

// WithDuplicateDetector classifies storage unique violations. A posting that
// loses a race on its txn id is retried once and then replays the winner.
func WithDuplicateDetector(fn func(error) bool) Option {
	return func(s *Service) {
		s.isDuplicate = fn
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a ledger service over a transaction scope
func NewService(scope txscope.TransactionScope, opts ...Option) *Service {
	poster := ledger.NewPoster()
	s := &Service{
		scope:       scope,
		poster:      poster,
		compensator: ledger.NewCompensator(poster),
		newTxnID:    ledger.NewTxnID,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post writes a balanced transaction. Posting an existing txn id with the
// same source and reference returns the stored transaction as replayed.
func (s *Service) Post(ctx context.Context, tenantID uuid.UUID, req PostRequest) (*PostingResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "Post")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrSourceType, req.SourceType,
		telemetry.SpanAttrSourceID, req.SourceID,
	)

	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	source, err := ledger.ParseSource(req.SourceType, req.SourceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	drafts, err := Drafts(req.Entries)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	txnID := strings.TrimSpace(req.TxnID)
	if txnID == "" {
		txnID = s.newTxnID()
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrTxnID, txnID)

	ctx = txscope.WithTenant(ctx, tenantID)
	result, err := s.execute(ctx, txnID, func(repos txscope.Repositories) (*ledger.PostingResult, error) {
		return s.poster.Post(ctx, repos.Ledger(), ledger.PostingRequest{
			TenantID:         tenantID,
			TxnID:            txnID,
			Source:           source,
			PaymentReference: strings.TrimSpace(req.PaymentReference),
			PostedAt:         req.PostedAt,
			Entries:          drafts,
		})
	})
	if err != nil {
		s.logFailure("Ledger posting failed", tenantID, txnID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.observe(ctx, span, "Ledger transaction posted", tenantID, result)
	return &PostingResult{Transaction: result.Transaction, Replayed: result.Replayed}, nil
}

// Compensate posts the mirror image of a transaction together with its two
// audit records. Nothing is written unless all three succeed.
func (s *Service) Compensate(ctx context.Context, tenantID uuid.UUID, actor shared.Actor, req CompensateRequest) (*PostingResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "Compensate")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrTxnID, req.CompensationTxnID,
		"original_txn_id", req.OriginalTxnID,
	)

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	ctx = txscope.WithTenant(ctx, tenantID)
	result, err := s.execute(ctx, req.CompensationTxnID, func(repos txscope.Repositories) (*ledger.PostingResult, error) {
		return s.compensator.Compensate(ctx, repos.Ledger(), repos.Audit(), ledger.CompensationRequest{
			TenantID:              tenantID,
			OriginalTxnID:         req.OriginalTxnID,
			CompensationTxnID:     req.CompensationTxnID,
			CompensationReference: req.CompensationReference,
			Reason:                strings.TrimSpace(req.Reason),
			SourceType:            req.SourceType,
			SourceID:              req.SourceID,
			PostedAt:              req.PostedAt,
			Actor:                 actor,
		})
	})
	if err != nil {
		s.logFailure("Ledger compensation failed", tenantID, req.CompensationTxnID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.observe(ctx, span, "Ledger transaction compensated", tenantID, result)
	return &PostingResult{Transaction: result.Transaction, Replayed: result.Replayed}, nil
}

// execute runs fn in one unit of work. When the commit loses a race on txnID
// the whole unit runs once more, which finds the stored transaction and
// takes the replay path. A second loss is returned as is.
func (s *Service) execute(ctx context.Context, txnID string, fn func(repos txscope.Repositories) (*ledger.PostingResult, error)) (*ledger.PostingResult, error) {
	var result *ledger.PostingResult
	attempt := func() error {
		return s.scope.Execute(ctx, func(repos txscope.Repositories) error {
			var err error
			result, err = fn(repos)
			return err
		})
	}
	err := attempt()
	if err != nil && s.isDuplicate != nil && s.isDuplicate(err) {
		s.logger.Debug("Ledger transaction written concurrently, retrying as replay",
			zap.String("txn_id", strings.TrimSpace(txnID)), zap.Error(err))
		err = attempt()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Transaction loads a posted transaction with its entries
func (s *Service) Transaction(ctx context.Context, tenantID uuid.UUID, txnID string) (*ledger.Transaction, error) {
	var txn *ledger.Transaction
	err := s.scope.Execute(txscope.WithTenant(ctx, tenantID), func(repos txscope.Repositories) error {
		var err error
		txn, err = repos.Ledger().FindTransaction(ctx, tenantID, strings.TrimSpace(txnID))
		return err
	})
	return txn, err
}

// EntriesBySource lists every entry linked to a business record
func (s *Service) EntriesBySource(ctx context.Context, tenantID uuid.UUID, sourceType, sourceID string) ([]ledger.Entry, error) {
	source, err := ledger.ParseSource(sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	var entries []ledger.Entry
	err = s.scope.Execute(txscope.WithTenant(ctx, tenantID), func(repos txscope.Repositories) error {
		var err error
		entries, err = repos.Ledger().FindEntriesBySource(ctx, tenantID, source)
		return err
	})
	return entries, err
}

// Drafts converts requested lines into entry drafts. Codes and sides are
// upper-cased here; the poster rejects anything outside the closed sets.
func Drafts(inputs []EntryInput) ([]ledger.EntryDraft, error) {
	drafts := make([]ledger.EntryDraft, 0, len(inputs))
	for i, in := range inputs {
		side, ok := ledger.ParseEntrySide(in.Side)
		if !ok {
			return nil, shared.NewValidationError("invalid_entry_side", "entry %d: invalid entry side %q", i+1, in.Side)
		}
		drafts = append(drafts, ledger.EntryDraft{
			AccountCode:    ledger.AccountCode(strings.ToUpper(strings.TrimSpace(in.AccountCode))),
			Side:           side,
			Amount:         in.Amount,
			CounterpartyID: in.CounterpartyID,
			Metadata:       in.Metadata,
		})
	}
	return drafts, nil
}

func (s *Service) observe(ctx context.Context, span trace.Span, msg string, tenantID uuid.UUID, result *ledger.PostingResult) {
	txn := result.Transaction
	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntryCount, txn.EntryCount,
		telemetry.SpanAttrReplayed, result.Replayed,
	)
	if result.Replayed {
		s.logger.Debug("Ledger transaction replayed", zap.String("txn_id", txn.TxnID))
		return
	}
	s.logger.Info(msg,
		zap.String("tenant_id", tenantID.String()),
		zap.String("txn_id", txn.TxnID),
		zap.String("source", txn.Source.String()),
		zap.Int("entry_count", txn.EntryCount),
	)
	if s.metrics != nil {
		s.metrics.RecordLedgerPosting(ctx, string(txn.Source.Kind), txn.EntryCount)
	}
}

func (s *Service) logFailure(msg string, tenantID uuid.UUID, txnID string, err error) {
	fields := []zap.Field{
		zap.String("tenant_id", tenantID.String()),
		zap.String("txn_id", txnID),
		zap.String("error_code", shared.ErrorCode(err)),
		zap.Error(err),
	}
	switch {
	case shared.IsInvariantViolation(err):
		s.logger.Error(msg, append(fields, zap.Stack("stack"))...)
	case shared.KindOf(err) == shared.KindAudit:
		s.logger.Error(msg, fields...)
	default:
		s.logger.Warn(msg, fields...)
	}
}
