// Package receivable registers receivables, attaches their signed documents
// and drives anticipation requests through their lifecycle. Every mutation
// runs under the idempotency protocol and appends to the receivable's event chain.
package receivable

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/application/idempotency"
	"github.com/anticipa/backend/internal/application/txscope"
	"github.com/anticipa/backend/internal/application/validation"
	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/canonical"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
	"github.com/anticipa/backend/internal/infrastructure/telemetry"
)

const (
	OperationCreateReceivable       = "create_receivable"
	OperationAttachDocument         = "attach_signed_document"
	OperationRequestAnticipation    = "request_anticipation"
	OperationTransitionAnticipation = "transition_anticipation"

	// DefaultAllocationName names the single allocation created when a
	// receivable is registered without an explicit split
	DefaultAllocationName = "DEFAULT"
)

// Service handles receivable lifecycle commands
type Service struct {
	protocol  *idempotency.Protocol
	scope     txscope.TransactionScope
	documents receivable.DocumentStore
	chain     *receivable.EventChain
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithDocumentStore sets the object store consulted before a document is attached
func WithDocumentStore(store receivable.DocumentStore) Option {
	return func(s *Service) {
		s.documents = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a receivable service. Mutations go through protocol;
// read-only checks such as chain verification open their own unit of work on scope.
func NewService(protocol *idempotency.Protocol, scope txscope.TransactionScope, opts ...Option) *Service {
	s := &Service{
		protocol: protocol,
		scope:    scope,
		chain:    receivable.NewEventChain(),
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePayload returns the normalized, fingerprinted form of a creation request
func CreatePayload(req CreateReceivableRequest) map[string]any {
	var dueDate any
	if req.DueDate != nil {
		dueDate = canonical.FormatTime(*req.DueDate)
	}
	allocations := make([]any, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		var policy any
		if a.SplitPolicy != nil {
			policy = map[string]any{
				"rate":      valueobject.RateString(a.SplitPolicy.Rate),
				"source":    strings.TrimSpace(a.SplitPolicy.Source),
				"policy_id": strings.TrimSpace(a.SplitPolicy.PolicyID),
			}
		}
		allocations = append(allocations, map[string]any{
			"name":               strings.TrimSpace(a.Name),
			"gross_amount":       valueobject.MoneyString(a.GrossAmount),
			"tax_reserve_amount": valueobject.MoneyString(a.TaxReserveAmount),
			"split_policy":       policy,
		})
	}
	return map[string]any{
		"debtor_id":      req.DebtorID.String(),
		"creditor_id":    req.CreditorID.String(),
		"beneficiary_id": req.BeneficiaryID.String(),
		"gross_amount":   valueobject.MoneyString(req.GrossAmount),
		"due_date":       dueDate,
		"allocations":    allocations,
	}
}

// CreateReceivable registers a receivable and its allocations once per idempotency key
func (s *Service) CreateReceivable(ctx context.Context, cmd shared.CommandContext, req CreateReceivableRequest) (*ReceivableResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receivable", "CreateReceivable")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAmount, valueobject.MoneyString(req.GrossAmount))

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationCreateReceivable, cmd, err)
	}
	req.GrossAmount = valueobject.RoundMoney(req.GrossAmount)
	if !req.GrossAmount.IsPositive() {
		err := shared.NewValidationError("invalid_gross_amount", "gross amount must be greater than zero")
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationCreateReceivable, cmd, err)
	}

	res, err := idempotency.Run(ctx, s.protocol, idempotency.Operation[*ReceivableResult]{
		Name:    OperationCreateReceivable,
		Command: cmd,
		Payload: CreatePayload(req),
		Find: func(ctx context.Context, repos txscope.Repositories) (*ReceivableResult, string, bool, error) {
			existing, err := repos.Receivables().FindByIdempotencyKeyForUpdate(ctx, cmd.TenantID, cmd.Key())
			if err != nil {
				if shared.IsNotFound(err) {
					return nil, "", false, nil
				}
				return nil, "", false, fmt.Errorf("load receivable by idempotency key: %w", err)
			}
			allocations, err := repos.Allocations().ListByReceivable(ctx, cmd.TenantID, existing.ID)
			if err != nil {
				return nil, "", false, fmt.Errorf("load allocations: %w", err)
			}
			return &ReceivableResult{Receivable: existing, Allocations: allocations}, existing.PayloadHash, true, nil
		},
		SameIntent: func(existing *ReceivableResult) bool {
			rec := existing.Receivable
			return rec.DebtorID == req.DebtorID &&
				rec.CreditorID == req.CreditorID &&
				rec.BeneficiaryID == req.BeneficiaryID &&
				rec.GrossAmount.Equal(req.GrossAmount)
		},
		Execute: func(ctx context.Context, repos txscope.Repositories, payloadHash string) (*ReceivableResult, error) {
			return s.createReceivable(ctx, repos, cmd, req, payloadHash)
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := res.Value
	result.Replayed = res.Replayed()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceivableID, result.Receivable.ID.String(),
		telemetry.SpanAttrReplayed, result.Replayed,
	)
	if !result.Replayed {
		s.logger.Info("Receivable created",
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.String("receivable_id", result.Receivable.ID.String()),
			zap.String("gross_amount", valueobject.MoneyString(result.Receivable.GrossAmount)),
			zap.Int("allocations", len(result.Allocations)),
		)
	}
	return result, nil
}

func (s *Service) createReceivable(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext, req CreateReceivableRequest, payloadHash string) (*ReceivableResult, error) {
	now := s.now().UTC()
	var dueDate *time.Time
	if req.DueDate != nil {
		d := req.DueDate.UTC()
		dueDate = &d
	}
	rec := &receivable.Receivable{
		ID:             uuid.New(),
		TenantID:       cmd.TenantID,
		IdempotencyKey: cmd.Key(),
		PayloadHash:    payloadHash,
		DebtorID:       req.DebtorID,
		CreditorID:     req.CreditorID,
		BeneficiaryID:  req.BeneficiaryID,
		GrossAmount:    req.GrossAmount,
		DueDate:        dueDate,
		Status:         receivable.StatusPerformed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	allocations, err := BuildAllocations(rec, req.Allocations, now)
	if err != nil {
		return nil, err
	}

	if err := repos.Receivables().Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert receivable: %w", err)
	}
	if err := repos.Allocations().CreateBatch(ctx, allocations); err != nil {
		return nil, fmt.Errorf("insert allocations: %w", err)
	}

	refs := make([]any, 0, len(allocations))
	for _, a := range allocations {
		refs = append(refs, map[string]any{
			"allocation_id":      a.ID.String(),
			"sequence":           a.Sequence,
			"name":               a.Name,
			"gross_amount":       valueobject.MoneyString(a.GrossAmount),
			"tax_reserve_amount": valueobject.MoneyString(a.TaxReserveAmount),
		})
	}
	if _, err := s.chain.Append(ctx, repos.Events(), receivable.AppendRequest{
		TenantID:     cmd.TenantID,
		ReceivableID: rec.ID,
		EventType:    receivable.EventReceivableCreated,
		OccurredAt:   now,
		RequestID:    cmd.RequestID,
		Payload: map[string]any{
			"debtor_id":      rec.DebtorID.String(),
			"creditor_id":    rec.CreditorID.String(),
			"beneficiary_id": rec.BeneficiaryID.String(),
			"gross_amount":   valueobject.MoneyString(rec.GrossAmount),
			"status":         rec.Status.String(),
			"allocations":    refs,
		},
	}); err != nil {
		return nil, err
	}
	return &ReceivableResult{Receivable: rec, Allocations: allocations}, nil
}

// BuildAllocations turns the requested split into sequence-numbered
// allocations. An empty split yields one allocation for the full gross with
// no tax reserve; otherwise the allocation gross amounts must add up to the
// receivable's gross.
func BuildAllocations(rec *receivable.Receivable, inputs []AllocationInput, now time.Time) ([]*receivable.Allocation, error) {
	newAllocation := func(seq int, name string, gross, reserve decimal.Decimal, meta map[string]any) *receivable.Allocation {
		return &receivable.Allocation{
			ID:               uuid.New(),
			TenantID:         rec.TenantID,
			ReceivableID:     rec.ID,
			Sequence:         seq,
			Name:             name,
			GrossAmount:      gross,
			TaxReserveAmount: reserve,
			Status:           receivable.AllocationStatusOpen,
			Metadata:         meta,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	if len(inputs) == 0 {
		return []*receivable.Allocation{
			newAllocation(1, DefaultAllocationName, rec.GrossAmount, decimal.Zero, map[string]any{}),
		}, nil
	}

	allocations := make([]*receivable.Allocation, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		gross := valueobject.RoundMoney(in.GrossAmount)
		if !gross.IsPositive() {
			return nil, shared.NewValidationError("invalid_allocation_gross_amount",
				"allocation %d gross amount must be greater than zero", i+1)
		}
		reserve := valueobject.RoundMoney(in.TaxReserveAmount)
		if reserve.IsNegative() || reserve.GreaterThan(gross) {
			return nil, shared.NewValidationError("invalid_tax_reserve_amount",
				"allocation %d tax reserve must be between zero and its gross amount", i+1)
		}
		meta := map[string]any{}
		if in.SplitPolicy != nil {
			rate := valueobject.RoundRate(in.SplitPolicy.Rate)
			if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
				return nil, shared.NewValidationError("invalid_split_policy_rate",
					"allocation %d split policy rate must be in [0, 1]", i+1)
			}
			meta[receivable.SplitPolicyMetadataKey] = receivable.SplitPolicy{
				Rate:     rate,
				Source:   strings.TrimSpace(in.SplitPolicy.Source),
				PolicyID: strings.TrimSpace(in.SplitPolicy.PolicyID),
			}.Metadata()
		}
		total = total.Add(gross)
		allocations = append(allocations, newAllocation(i+1, strings.TrimSpace(in.Name), gross, reserve, meta))
	}
	if !total.Equal(rec.GrossAmount) {
		return nil, shared.NewValidationError("allocation_sum_mismatch",
			"allocations add up to %s but the receivable gross is %s",
			valueobject.MoneyString(total), valueobject.MoneyString(rec.GrossAmount))
	}
	return allocations, nil
}

// DocumentPayload returns the normalized, fingerprinted form of an attachment request
func DocumentPayload(req AttachDocumentRequest) map[string]any {
	return map[string]any{
		"receivable_id": req.ReceivableID.String(),
		"document_type": strings.TrimSpace(req.DocumentType),
		"storage_key":   strings.TrimSpace(req.StorageKey),
		"sha256":        strings.ToLower(req.SHA256),
		"signed_at":     canonical.FormatTime(req.SignedAt),
	}
}

// AttachSignedDocument links a signed artifact to a receivable after
// confirming the object exists in storage with the declared checksum.
func (s *Service) AttachSignedDocument(ctx context.Context, cmd shared.CommandContext, req AttachDocumentRequest) (*DocumentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receivable", "AttachSignedDocument")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrReceivableID, req.ReceivableID.String())

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationAttachDocument, cmd, err)
	}
	req.DocumentType = strings.TrimSpace(req.DocumentType)
	req.StorageKey = strings.TrimSpace(req.StorageKey)
	req.SHA256 = strings.ToLower(req.SHA256)
	req.SignedAt = req.SignedAt.UTC()

	res, err := idempotency.Run(ctx, s.protocol, idempotency.Operation[*DocumentResult]{
		Name:    OperationAttachDocument,
		Command: cmd,
		Payload: DocumentPayload(req),
		Find: func(ctx context.Context, repos txscope.Repositories) (*DocumentResult, string, bool, error) {
			existing, err := repos.Documents().FindByIdempotencyKeyForUpdate(ctx, cmd.TenantID, cmd.Key())
			if err != nil {
				if shared.IsNotFound(err) {
					return nil, "", false, nil
				}
				return nil, "", false, fmt.Errorf("load document by idempotency key: %w", err)
			}
			return &DocumentResult{Document: existing}, existing.PayloadHash, true, nil
		},
		SameIntent: func(existing *DocumentResult) bool {
			doc := existing.Document
			return doc.ReceivableID == req.ReceivableID &&
				doc.StorageKey == req.StorageKey &&
				doc.SHA256 == req.SHA256
		},
		Execute: func(ctx context.Context, repos txscope.Repositories, payloadHash string) (*DocumentResult, error) {
			return s.attachDocument(ctx, repos, cmd, req, payloadHash)
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result := res.Value
	result.Replayed = res.Replayed()
	telemetry.SetAttribute(span, telemetry.SpanAttrReplayed, result.Replayed)
	return result, nil
}

func (s *Service) attachDocument(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext, req AttachDocumentRequest, payloadHash string) (*DocumentResult, error) {
	if s.documents == nil {
		return nil, fmt.Errorf("document store is not configured")
	}
	rec, err := repos.Receivables().FindByIDForUpdate(ctx, cmd.TenantID, req.ReceivableID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, shared.NewValidationError("receivable_cancelled", "receivable %s is cancelled", rec.ID)
	}

	obj, err := s.documents.Stat(ctx, req.StorageKey)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("document_not_found", "document %s not found in storage", req.StorageKey)
		}
		return nil, fmt.Errorf("stat document %s: %w", req.StorageKey, err)
	}
	// Stores that do not keep a checksum are trusted on existence alone.
	if obj.SHA256 != "" && !strings.EqualFold(obj.SHA256, req.SHA256) {
		return nil, shared.NewValidationError("document_checksum_mismatch",
			"document %s checksum does not match the stored object", req.StorageKey)
	}

	now := s.now().UTC()
	doc := &receivable.SignedDocument{
		ID:             uuid.New(),
		TenantID:       cmd.TenantID,
		ReceivableID:   rec.ID,
		IdempotencyKey: cmd.Key(),
		PayloadHash:    payloadHash,
		DocumentType:   req.DocumentType,
		StorageKey:     req.StorageKey,
		SHA256:         req.SHA256,
		SizeBytes:      obj.SizeBytes,
		SignedAt:       req.SignedAt,
		CreatedAt:      now,
	}
	if err := repos.Documents().Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	if _, err := s.chain.Append(ctx, repos.Events(), receivable.AppendRequest{
		TenantID:     cmd.TenantID,
		ReceivableID: rec.ID,
		EventType:    receivable.EventDocumentAttached,
		OccurredAt:   now,
		RequestID:    cmd.RequestID,
		Payload: map[string]any{
			"document_id":   doc.ID.String(),
			"document_type": doc.DocumentType,
			"storage_key":   doc.StorageKey,
			"sha256":        doc.SHA256,
			"size_bytes":    doc.SizeBytes,
			"signed_at":     canonical.FormatTime(doc.SignedAt),
		},
	}); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

// AnticipationPayload returns the normalized, fingerprinted form of an anticipation request
func AnticipationPayload(req RequestAnticipationRequest) map[string]any {
	var allocationID any
	if req.AllocationID != nil {
		allocationID = req.AllocationID.String()
	}
	return map[string]any{
		"receivable_id":    req.ReceivableID.String(),
		"allocation_id":    allocationID,
		"requested_amount": valueobject.MoneyString(req.RequestedAmount),
		"discount_rate":    valueobject.RateString(req.DiscountRate),
	}
}

// RequestAnticipation opens an anticipation request, priced at the agreed
// discount rate, and moves the receivable to ANTICIPATION_REQUESTED.
func (s *Service) RequestAnticipation(ctx context.Context, cmd shared.CommandContext, req RequestAnticipationRequest) (*AnticipationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receivable", "RequestAnticipation")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceivableID, req.ReceivableID.String(),
		telemetry.SpanAttrAmount, valueobject.MoneyString(req.RequestedAmount),
	)

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationRequestAnticipation, cmd, err)
	}
	req.RequestedAmount = valueobject.RoundMoney(req.RequestedAmount)
	req.DiscountRate = valueobject.RoundRate(req.DiscountRate)

	res, err := idempotency.Run(ctx, s.protocol, idempotency.Operation[*AnticipationResult]{
		Name:    OperationRequestAnticipation,
		Command: cmd,
		Payload: AnticipationPayload(req),
		Find: func(ctx context.Context, repos txscope.Repositories) (*AnticipationResult, string, bool, error) {
			existing, err := repos.Anticipations().FindByIdempotencyKeyForUpdate(ctx, cmd.TenantID, cmd.Key())
			if err != nil {
				if shared.IsNotFound(err) {
					return nil, "", false, nil
				}
				return nil, "", false, fmt.Errorf("load anticipation request by idempotency key: %w", err)
			}
			return &AnticipationResult{Request: existing}, existing.PayloadHash, true, nil
		},
		SameIntent: func(existing *AnticipationResult) bool {
			ar := existing.Request
			if !sameAllocation(ar.AllocationID, req.AllocationID) {
				return false
			}
			return ar.ReceivableID == req.ReceivableID &&
				ar.RequestedAmount.Equal(req.RequestedAmount) &&
				ar.DiscountRate.Equal(req.DiscountRate)
		},
		Execute: func(ctx context.Context, repos txscope.Repositories, payloadHash string) (*AnticipationResult, error) {
			return s.requestAnticipation(ctx, repos, cmd, req, payloadHash)
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result := res.Value
	result.Replayed = res.Replayed()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAnticipationID, result.Request.ID.String(),
		telemetry.SpanAttrReplayed, result.Replayed,
	)
	if !result.Replayed {
		s.logger.Info("Anticipation requested",
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.String("anticipation_request_id", result.Request.ID.String()),
			zap.String("receivable_id", result.Request.ReceivableID.String()),
			zap.String("requested_amount", valueobject.MoneyString(result.Request.RequestedAmount)),
			zap.String("net_amount", valueobject.MoneyString(result.Request.NetAmount)),
		)
	}
	return result, nil
}

func (s *Service) requestAnticipation(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext, req RequestAnticipationRequest, payloadHash string) (*AnticipationResult, error) {
	rec, err := repos.Receivables().FindByIDForUpdate(ctx, cmd.TenantID, req.ReceivableID)
	if err != nil {
		return nil, err
	}
	if rec.Status.IsTerminal() {
		return nil, shared.NewValidationError("receivable_cancelled", "receivable %s is cancelled", rec.ID)
	}

	ceiling := rec.GrossAmount
	if req.AllocationID != nil {
		alloc, err := repos.Allocations().FindByIDForUpdate(ctx, cmd.TenantID, *req.AllocationID)
		if err != nil {
			return nil, err
		}
		if alloc.ReceivableID != rec.ID {
			return nil, shared.NewNotFoundError("allocation_not_found",
				"allocation %s does not belong to receivable %s", alloc.ID, rec.ID)
		}
		if alloc.Status == receivable.AllocationStatusCancelled {
			return nil, shared.NewValidationError("allocation_cancelled", "allocation %s is cancelled", alloc.ID)
		}
		ceiling = alloc.GrossAmount
	}

	now := s.now().UTC()
	ar, err := receivable.NewAnticipationRequest(cmd.TenantID, rec.ID, req.AllocationID, req.RequestedAmount, req.DiscountRate, now)
	if err != nil {
		return nil, err
	}
	if ar.RequestedAmount.GreaterThan(ceiling) {
		return nil, shared.NewValidationError("requested_amount_exceeds_gross",
			"requested amount %s exceeds the gross amount %s",
			valueobject.MoneyString(ar.RequestedAmount), valueobject.MoneyString(ceiling))
	}
	ar.IdempotencyKey = cmd.Key()
	ar.PayloadHash = payloadHash
	ar.CreatedAt = now
	ar.UpdatedAt = now
	if err := repos.Anticipations().Create(ctx, ar); err != nil {
		return nil, fmt.Errorf("insert anticipation request: %w", err)
	}

	history := &receivable.StatusHistory{
		ID:                    uuid.New(),
		TenantID:              cmd.TenantID,
		AnticipationRequestID: ar.ID,
		ToStatus:              receivable.AnticipationStatusRequested,
		Reason:                "anticipation requested",
		ActorID:               cmd.Actor.ID,
		CreatedAt:             now,
	}
	if err := repos.Anticipations().AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("record anticipation history %s: %w", ar.ID, err)
	}

	if err := s.advanceReceivable(ctx, repos, rec, receivable.StatusAnticipationRequested); err != nil {
		return nil, err
	}

	var allocationID any
	if ar.AllocationID != nil {
		allocationID = ar.AllocationID.String()
	}
	if _, err := s.chain.Append(ctx, repos.Events(), receivable.AppendRequest{
		TenantID:     cmd.TenantID,
		ReceivableID: rec.ID,
		EventType:    receivable.EventAnticipationRequested,
		OccurredAt:   now,
		RequestID:    cmd.RequestID,
		Payload: map[string]any{
			"anticipation_request_id": ar.ID.String(),
			"allocation_id":           allocationID,
			"requested_amount":        valueobject.MoneyString(ar.RequestedAmount),
			"discount_rate":           valueobject.RateString(ar.DiscountRate),
			"discount_amount":         valueobject.MoneyString(ar.DiscountAmount),
			"net_amount":              valueobject.MoneyString(ar.NetAmount),
			"status":                  string(ar.Status),
		},
	}); err != nil {
		return nil, err
	}
	return &AnticipationResult{Request: ar, History: history}, nil
}

// TransitionPayload returns the normalized, fingerprinted form of a transition request
func TransitionPayload(req TransitionAnticipationRequest) map[string]any {
	return map[string]any{
		"anticipation_request_id": req.AnticipationRequestID.String(),
		"to_status":               string(req.ToStatus),
		"reason":                  strings.TrimSpace(req.Reason),
	}
}

// TransitionAnticipation applies a caller-driven status change. FUNDED also
// advances the receivable; SETTLED is only reachable through settlement.
func (s *Service) TransitionAnticipation(ctx context.Context, cmd shared.CommandContext, req TransitionAnticipationRequest) (*AnticipationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receivable", "TransitionAnticipation")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrAnticipationID, req.AnticipationRequestID.String(),
		"to_status", string(req.ToStatus),
	)

	if err := validation.Struct(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, s.protocol.Reject(ctx, OperationTransitionAnticipation, cmd, err)
	}
	req.ToStatus = receivable.AnticipationStatus(strings.ToUpper(strings.TrimSpace(string(req.ToStatus))))
	req.Reason = strings.TrimSpace(req.Reason)

	res, err := idempotency.Run(ctx, s.protocol, idempotency.Operation[*AnticipationResult]{
		Name:    OperationTransitionAnticipation,
		Command: cmd,
		Payload: TransitionPayload(req),
		Find: func(ctx context.Context, repos txscope.Repositories) (*AnticipationResult, string, bool, error) {
			history, err := repos.Anticipations().FindHistoryByIdempotencyKeyForUpdate(ctx, cmd.TenantID, cmd.Key())
			if err != nil {
				if shared.IsNotFound(err) {
					return nil, "", false, nil
				}
				return nil, "", false, fmt.Errorf("load status history by idempotency key: %w", err)
			}
			ar, err := repos.Anticipations().FindByID(ctx, cmd.TenantID, history.AnticipationRequestID)
			if err != nil {
				return nil, "", false, fmt.Errorf("load anticipation request %s: %w", history.AnticipationRequestID, err)
			}
			return &AnticipationResult{Request: ar, History: history}, history.PayloadHash, true, nil
		},
		SameIntent: func(existing *AnticipationResult) bool {
			h := existing.History
			return h.AnticipationRequestID == req.AnticipationRequestID && h.ToStatus == req.ToStatus
		},
		Execute: func(ctx context.Context, repos txscope.Repositories, payloadHash string) (*AnticipationResult, error) {
			return s.transitionAnticipation(ctx, repos, cmd, req, payloadHash)
		},
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result := res.Value
	result.Replayed = res.Replayed()
	telemetry.SetAttribute(span, telemetry.SpanAttrReplayed, result.Replayed)
	if !result.Replayed {
		s.logger.Info("Anticipation status changed",
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.String("anticipation_request_id", result.Request.ID.String()),
			zap.String("from_status", string(result.History.FromStatus)),
			zap.String("to_status", string(result.History.ToStatus)),
		)
	}
	return result, nil
}

func (s *Service) transitionAnticipation(ctx context.Context, repos txscope.Repositories, cmd shared.CommandContext, req TransitionAnticipationRequest, payloadHash string) (*AnticipationResult, error) {
	// Lock order matches settlement: receivable first, then its requests.
	current, err := repos.Anticipations().FindByID(ctx, cmd.TenantID, req.AnticipationRequestID)
	if err != nil {
		return nil, err
	}
	rec, err := repos.Receivables().FindByIDForUpdate(ctx, cmd.TenantID, current.ReceivableID)
	if err != nil {
		return nil, err
	}
	ar, err := repos.Anticipations().FindByIDForUpdate(ctx, cmd.TenantID, current.ID)
	if err != nil {
		return nil, err
	}

	history, err := ar.Transition(req.ToStatus, req.Reason, cmd.Actor)
	if err != nil {
		return nil, err
	}
	history.IdempotencyKey = cmd.Key()
	history.PayloadHash = payloadHash

	if err := repos.Anticipations().UpdateStatus(ctx, ar); err != nil {
		return nil, fmt.Errorf("update anticipation request %s: %w", ar.ID, err)
	}
	if err := repos.Anticipations().AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("record anticipation history %s: %w", ar.ID, err)
	}

	if ar.Status == receivable.AnticipationStatusFunded {
		if err := s.advanceReceivable(ctx, repos, rec, receivable.StatusFunded); err != nil {
			return nil, err
		}
	}

	if _, err := s.chain.Append(ctx, repos.Events(), receivable.AppendRequest{
		TenantID:     cmd.TenantID,
		ReceivableID: rec.ID,
		EventType:    receivable.EventAnticipationStatusChanged,
		OccurredAt:   history.CreatedAt,
		RequestID:    cmd.RequestID,
		Payload: map[string]any{
			"anticipation_request_id": ar.ID.String(),
			"status_history_id":       history.ID.String(),
			"from_status":             string(history.FromStatus),
			"to_status":               string(history.ToStatus),
			"reason":                  history.Reason,
		},
	}); err != nil {
		return nil, err
	}
	return &AnticipationResult{Request: ar, History: history}, nil
}

func (s *Service) advanceReceivable(ctx context.Context, repos txscope.Repositories, rec *receivable.Receivable, to receivable.Status) error {
	changed, err := rec.Advance(to)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := repos.Receivables().UpdateStatus(ctx, rec); err != nil {
		return fmt.Errorf("advance receivable %s to %s: %w", rec.ID, to, err)
	}
	return nil
}

// VerifyEventChain recomputes a receivable's event chain. A broken chain is
// reported, not returned as an error; errors mean the chain could not be read.
func (s *Service) VerifyEventChain(ctx context.Context, tenantID, receivableID uuid.UUID) (receivable.ChainReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "receivable", "VerifyEventChain")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrReceivableID, receivableID.String(),
	)

	if tenantID == uuid.Nil {
		return receivable.ChainReport{}, shared.ErrTenantRequired
	}
	ctx = txscope.WithTenant(ctx, tenantID)

	var report receivable.ChainReport
	err := s.scope.Execute(ctx, func(repos txscope.Repositories) error {
		if _, err := repos.Receivables().FindByID(ctx, tenantID, receivableID); err != nil {
			return err
		}
		events, err := repos.Events().ListByReceivable(ctx, tenantID, receivableID)
		if err != nil {
			return fmt.Errorf("load event chain: %w", err)
		}
		report = receivable.VerifyChain(receivableID, events)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return receivable.ChainReport{}, err
	}

	telemetry.SetAttributes(span, "events", report.EventCount, "valid", report.Valid)
	if !report.Valid {
		telemetry.RecordError(span, report.Err())
		s.logger.Error("Event chain verification failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("receivable_id", receivableID.String()),
			zap.Int64("broken_at", report.BrokenAt),
			zap.String("reason", report.Reason),
		)
	}
	return report, nil
}

func sameAllocation(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
