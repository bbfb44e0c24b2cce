package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/canonical"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
)

// EntryDraft is one requested line of a transaction before validation
type EntryDraft struct {
	AccountCode    AccountCode
	Side           EntrySide
	Amount         decimal.Decimal
	CounterpartyID *uuid.UUID
	Metadata       map[string]any
}

// Entry is a persisted ledger line. Entries are append-only.
type Entry struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	TxnID            string
	AccountCode      AccountCode
	Side             EntrySide
	Amount           decimal.Decimal
	CounterpartyID   *uuid.UUID
	EntryPosition    int
	TxnEntryCount    int
	Source           Source
	PaymentReference string
	Metadata         map[string]any
	PostedAt         time.Time
	CreatedAt        time.Time
}

// Transaction is a balanced group of entries sharing a txn id
type Transaction struct {
	TxnID            string
	TenantID         uuid.UUID
	Source           Source
	PaymentReference string
	EntryCount       int
	PayloadHash      string
	PostedAt         time.Time
	CreatedAt        time.Time
	Entries          []Entry
}

// Totals returns the debit and credit sums
func (t *Transaction) Totals() (debits, credits decimal.Decimal) {
	return sumSides(t.Entries)
}

// EntryFor returns the first entry on the given account and side
func (t *Transaction) EntryFor(code AccountCode, side EntrySide) (Entry, bool) {
	for _, e := range t.Entries {
		if e.AccountCode == code && e.Side == side {
			return e, true
		}
	}
	return Entry{}, false
}

func sumSides(entries []Entry) (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.Side == Debit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits
}

// ValidateDrafts checks a draft set against the chart of accounts and the
// balance rule. It returns the drafts with amounts rounded to money scale.
func ValidateDrafts(drafts []EntryDraft) ([]EntryDraft, error) {
	if len(drafts) == 0 {
		return nil, shared.NewDomainError("empty_entries", "ledger transaction requires at least one entry")
	}

	out := make([]EntryDraft, len(drafts))
	debits, credits := decimal.Zero, decimal.Zero
	for i, d := range drafts {
		if !d.AccountCode.IsValid() {
			return nil, shared.NewValidationError("unknown_account_code", "entry %d: unknown account code %q", i+1, d.AccountCode)
		}
		if !d.Side.IsValid() {
			return nil, shared.NewValidationError("invalid_entry_side", "entry %d: invalid entry side %q", i+1, d.Side)
		}
		amount := valueobject.RoundMoney(d.Amount)
		if !amount.IsPositive() {
			return nil, shared.NewValidationError("non_positive_amount", "entry %d: amount must be greater than zero, got %s", i+1, amount)
		}
		d.Amount = amount
		out[i] = d
		if d.Side == Debit {
			debits = debits.Add(amount)
		} else {
			credits = credits.Add(amount)
		}
	}

	if !debits.Equal(credits) {
		return nil, shared.NewInvariantViolation("unbalanced_transaction",
			"debits %s do not equal credits %s", debits.StringFixed(2), credits.StringFixed(2))
	}
	return out, nil
}

// VerifyIntegrity checks a loaded transaction against the invariants stamped at write time
func VerifyIntegrity(t *Transaction) error {
	n := len(t.Entries)
	if n == 0 || n != t.EntryCount {
		return shared.NewInvariantViolation("ledger_integrity_violation",
			"txn %s: header declares %d entries, found %d", t.TxnID, t.EntryCount, n)
	}

	entries := make([]Entry, n)
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryPosition < entries[j].EntryPosition })

	for i, e := range entries {
		switch {
		case e.EntryPosition != i+1:
			return shared.NewInvariantViolation("ledger_integrity_violation",
				"txn %s: entry positions are not contiguous at %d", t.TxnID, i+1)
		case e.TxnEntryCount != n:
			return shared.NewInvariantViolation("ledger_integrity_violation",
				"txn %s: entry %d declares count %d, expected %d", t.TxnID, e.EntryPosition, e.TxnEntryCount, n)
		case e.Source != t.Source:
			return shared.NewInvariantViolation("ledger_integrity_violation",
				"txn %s: entry %d source %s differs from header %s", t.TxnID, e.EntryPosition, e.Source, t.Source)
		case e.PaymentReference != t.PaymentReference:
			return shared.NewInvariantViolation("ledger_integrity_violation",
				"txn %s: entry %d payment reference differs from header", t.TxnID, e.EntryPosition)
		case !e.Amount.IsPositive():
			return shared.NewInvariantViolation("ledger_integrity_violation",
				"txn %s: entry %d has non-positive amount", t.TxnID, e.EntryPosition)
		}
	}

	debits, credits := sumSides(entries)
	if !debits.Equal(credits) {
		return shared.NewInvariantViolation("unbalanced_transaction",
			"txn %s: debits %s do not equal credits %s", t.TxnID, debits.StringFixed(2), credits.StringFixed(2))
	}
	return nil
}

// payloadHash fingerprints the identifying content of a transaction
func payloadHash(txnID string, source Source, paymentReference string, drafts []EntryDraft) (string, error) {
	lines := make([]any, len(drafts))
	for i, d := range drafts {
		var counterparty any
		if d.CounterpartyID != nil {
			counterparty = d.CounterpartyID.String()
		}
		lines[i] = map[string]any{
			"position":     i + 1,
			"account_code": string(d.AccountCode),
			"entry_side":   string(d.Side),
			"amount":       valueobject.MoneyString(d.Amount),
			"counterparty": counterparty,
		}
	}
	return canonical.Fingerprint(map[string]any{
		"txn_id":            txnID,
		"source_type":       string(source.Kind),
		"source_id":         source.ID.String(),
		"payment_reference": paymentReference,
		"entries":           lines,
	})
}
