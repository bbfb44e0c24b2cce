package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/shared"
)

// PostingRequest asks the poster to record one transaction
type PostingRequest struct {
	TenantID         uuid.UUID
	TxnID            string
	Source           Source
	PaymentReference string
	PostedAt         time.Time
	Entries          []EntryDraft
}

// PostingResult carries the stored transaction and whether it already existed
type PostingResult struct {
	Transaction *Transaction
	Replayed    bool
}

// Poster validates and persists balanced double-entry transactions.
// It is idempotent by txn id and emits no events.
type Poster struct {
	now func() time.Time
}

// NewPoster creates a poster using the wall clock
func NewPoster() *Poster {
	return &Poster{now: time.Now}
}

// Post writes the transaction, or returns the stored one if the txn id was
// already posted with the same source and payment reference.
func (p *Poster) Post(ctx context.Context, repo Repository, req PostingRequest) (*PostingResult, error) {
	txnID := strings.TrimSpace(req.TxnID)
	if txnID == "" {
		return nil, shared.NewDomainError("txn_id_required", "ledger transaction id is required")
	}
	if req.TenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}

	existing, err := repo.FindTransaction(ctx, req.TenantID, txnID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, fmt.Errorf("load ledger transaction %s: %w", txnID, err)
	}
	if existing != nil {
		if existing.Source != req.Source || existing.PaymentReference != req.PaymentReference {
			return nil, shared.NewInvariantViolation("ledger_txn_identity_mismatch",
				"txn %s already posted for %s (reference %q), requested for %s (reference %q)",
				txnID, existing.Source, existing.PaymentReference, req.Source, req.PaymentReference)
		}
		if err := VerifyIntegrity(existing); err != nil {
			return nil, err
		}
		return &PostingResult{Transaction: existing, Replayed: true}, nil
	}

	drafts, err := ValidateDrafts(req.Entries)
	if err != nil {
		return nil, err
	}

	hash, err := payloadHash(txnID, req.Source, req.PaymentReference, drafts)
	if err != nil {
		return nil, fmt.Errorf("fingerprint ledger transaction: %w", err)
	}

	now := p.now().UTC()
	postedAt := req.PostedAt.UTC()
	if req.PostedAt.IsZero() {
		postedAt = now
	}

	n := len(drafts)
	txn := &Transaction{
		TxnID:            txnID,
		TenantID:         req.TenantID,
		Source:           req.Source,
		PaymentReference: req.PaymentReference,
		EntryCount:       n,
		PayloadHash:      hash,
		PostedAt:         postedAt,
		CreatedAt:        now,
		Entries:          make([]Entry, n),
	}
	for i, d := range drafts {
		txn.Entries[i] = Entry{
			ID:               uuid.New(),
			TenantID:         req.TenantID,
			TxnID:            txnID,
			AccountCode:      d.AccountCode,
			Side:             d.Side,
			Amount:           d.Amount,
			CounterpartyID:   d.CounterpartyID,
			EntryPosition:    i + 1,
			TxnEntryCount:    n,
			Source:           req.Source,
			PaymentReference: req.PaymentReference,
			Metadata:         d.Metadata,
			PostedAt:         postedAt,
			CreatedAt:        now,
		}
	}

	if err := repo.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("save ledger transaction %s: %w", txnID, err)
	}
	return &PostingResult{Transaction: txn, Replayed: false}, nil
}
