package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/domain/shared"
)

// CompensationReferencePrefix prefixes the payment reference of reversing transactions
const CompensationReferencePrefix = "COMPENSATION:"

// CompensationRequest asks for a reversal of a posted transaction
type CompensationRequest struct {
	TenantID              uuid.UUID
	OriginalTxnID         string
	CompensationTxnID     string
	CompensationReference string
	Reason                string
	SourceType            string
	SourceID              string
	PostedAt              time.Time
	Actor                 shared.Actor
}

func (r CompensationRequest) validate() (Source, error) {
	if r.TenantID == uuid.Nil {
		return Source{}, shared.ErrTenantRequired
	}
	if strings.TrimSpace(r.OriginalTxnID) == "" {
		return Source{}, shared.NewDomainError("original_txn_id_required", "original transaction id is required")
	}
	if strings.TrimSpace(r.CompensationTxnID) == "" {
		return Source{}, shared.NewDomainError("compensation_txn_id_required", "compensation transaction id is required")
	}
	if strings.TrimSpace(r.CompensationReference) == "" {
		return Source{}, shared.NewDomainError("compensation_reference_required", "compensation reference is required")
	}
	source, err := ParseSource(r.SourceType, r.SourceID)
	if err != nil {
		return Source{}, err
	}
	if r.PostedAt.IsZero() {
		return Source{}, shared.NewDomainError("posted_at_required", "posted at timestamp is required")
	}
	return source, nil
}

// MirrorEntries flips the side of every original entry, keeping account,
// amount and counterparty, and tags each with the compensation context.
func MirrorEntries(original *Transaction, reason, reference string) []EntryDraft {
	drafts := make([]EntryDraft, len(original.Entries))
	for i, e := range original.Entries {
		drafts[i] = EntryDraft{
			AccountCode:    e.AccountCode,
			Side:           e.Side.Opposite(),
			Amount:         e.Amount,
			CounterpartyID: e.CounterpartyID,
			Metadata: map[string]any{
				"original_txn_id":        original.TxnID,
				"reason":                 reason,
				"compensation_reference": reference,
			},
		}
	}
	return drafts
}

// Compensator reverses posted transactions through the Poster
type Compensator struct {
	poster *Poster
}

// NewCompensator creates a compensator around a poster
func NewCompensator(poster *Poster) *Compensator {
	return &Compensator{poster: poster}
}

// Compensate posts the mirror of OriginalTxnID under CompensationTxnID.
// Both audit records are mandatory; if either cannot be written the call
// fails with audit_log_write_failed and the caller's transaction must roll back.
func (c *Compensator) Compensate(ctx context.Context, repo Repository, auditRepo audit.Repository, req CompensationRequest) (*PostingResult, error) {
	source, err := req.validate()
	if err != nil {
		return nil, err
	}
	originalID := strings.TrimSpace(req.OriginalTxnID)
	compensationID := strings.TrimSpace(req.CompensationTxnID)
	reference := strings.TrimSpace(req.CompensationReference)

	original, err := repo.FindTransaction(ctx, req.TenantID, originalID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.NewNotFoundError("original_transaction_not_found", "ledger transaction %s not found", originalID)
		}
		return nil, fmt.Errorf("load original transaction %s: %w", originalID, err)
	}
	if len(original.Entries) == 0 {
		return nil, shared.NewNotFoundError("original_transaction_not_found", "ledger transaction %s has no entries", originalID)
	}

	posting := PostingRequest{
		TenantID:         req.TenantID,
		TxnID:            compensationID,
		Source:           source,
		PaymentReference: CompensationReferencePrefix + reference,
		PostedAt:         req.PostedAt,
		Entries:          MirrorEntries(original, req.Reason, reference),
	}

	already, err := repo.FindTransaction(ctx, req.TenantID, compensationID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("load compensation transaction %s: %w", compensationID, err)
	}
	if already != nil {
		// Replay: the poster checks identity and returns the stored entries.
		return c.poster.Post(ctx, repo, posting)
	}

	details := map[string]any{
		"original_txn_id":        originalID,
		"compensation_txn_id":    compensationID,
		"compensation_reference": reference,
		"reason":                 req.Reason,
		"source":                 source.String(),
	}
	if err := c.writeAudit(ctx, auditRepo, req, audit.ActionCompensationRequested, details); err != nil {
		return nil, err
	}

	result, err := c.poster.Post(ctx, repo, posting)
	if err != nil {
		return nil, err
	}

	details["entry_count"] = result.Transaction.EntryCount
	details["payload_hash"] = result.Transaction.PayloadHash
	if err := c.writeAudit(ctx, auditRepo, req, audit.ActionCompensationPosted, details); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Compensator) writeAudit(ctx context.Context, repo audit.Repository, req CompensationRequest, action audit.Action, details map[string]any) error {
	rec := audit.NewRecord(req.TenantID, action, req.Actor, "LEDGER_TRANSACTION", strings.TrimSpace(req.CompensationTxnID))
	for k, v := range details {
		rec.Details[k] = v
	}
	if err := repo.Append(ctx, rec); err != nil {
		return shared.NewAuditError("audit_log_write_failed", "failed to write %s audit record: %v", action, err).WithCause(err)
	}
	return nil
}
