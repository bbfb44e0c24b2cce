package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	ledgerapp "github.com/anticipa/backend/internal/application/ledger"
	receivableapp "github.com/anticipa/backend/internal/application/receivable"
	"github.com/anticipa/backend/internal/application/settlement"
	"github.com/anticipa/backend/internal/domain/ledger"
	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/valueobject"
	"github.com/anticipa/backend/internal/infrastructure/event"
	"github.com/anticipa/backend/internal/infrastructure/persistence"
)

type command func(ctx context.Context, app *application, args []string, out io.Writer) error

var commands = map[string]command{
	"settle":         runSettle,
	"compensate":     runCompensate,
	"verify-chain":   runVerifyChain,
	"outbox-pending": runOutboxPending,
	"show-txn":       runShowTxn,
}

var errUsage = errors.New("invalid arguments")

// settleArgs is the parsed form of the settle flags
type settleArgs struct {
	Command shared.CommandContext
	Request settlement.SettlePaymentRequest
}

func parseSettle(args []string) (*settleArgs, error) {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	key := fs.String("key", "", "idempotency key (required)")
	actor := fs.String("actor", shared.SystemActor.ID, "acting principal recorded in audit rows")
	receivableID := fs.String("receivable", "", "receivable id (required)")
	allocationID := fs.String("allocation", "", "allocation id, required when the receivable has several")
	amount := fs.String("amount", "", "paid amount, e.g. 100.00 (required)")
	paidAt := fs.String("paid-at", "", "payment time, RFC 3339 (default: now)")
	reference := fs.String("reference", "", "payment reference (default: the idempotency key)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	tenantID, err := requireUUID("tenant", *tenant)
	if err != nil {
		return nil, err
	}
	recID, err := requireUUID("receivable", *receivableID)
	if err != nil {
		return nil, err
	}
	paid, err := decimal.NewFromString(strings.TrimSpace(*amount))
	if err != nil {
		return nil, fmt.Errorf("%w: -amount %q is not a decimal", errUsage, *amount)
	}
	at := time.Now().UTC()
	if *paidAt != "" {
		if at, err = time.Parse(time.RFC3339Nano, *paidAt); err != nil {
			return nil, fmt.Errorf("%w: -paid-at: %v", errUsage, err)
		}
	}

	parsed := &settleArgs{
		Command: shared.CommandContext{
			TenantID:       tenantID,
			IdempotencyKey: *key,
			RequestID:      uuid.NewString(),
			Actor:          operator(*actor),
		},
		Request: settlement.SettlePaymentRequest{
			ReceivableID:     recID,
			PaidAmount:       paid,
			PaidAt:           at,
			PaymentReference: *reference,
		},
	}
	if *allocationID != "" {
		id, err := requireUUID("allocation", *allocationID)
		if err != nil {
			return nil, err
		}
		parsed.Request.AllocationID = &id
	}
	return parsed, nil
}

func runSettle(ctx context.Context, app *application, args []string, out io.Writer) error {
	parsed, err := parseSettle(args)
	if err != nil {
		return err
	}
	result, err := app.settlements.Settle(ctx, parsed.Command, parsed.Request)
	if err != nil {
		return err
	}
	return writeJSON(out, settlement.ToSettlementResponse(result))
}

// compensateArgs is the parsed form of the compensate flags
type compensateArgs struct {
	TenantID uuid.UUID
	Actor    shared.Actor
	Request  ledgerapp.CompensateRequest
}

func parseCompensate(args []string) (*compensateArgs, error) {
	fs := flag.NewFlagSet("compensate", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	actor := fs.String("actor", shared.SystemActor.ID, "acting principal recorded in audit rows")
	original := fs.String("original", "", "txn id to reverse (required)")
	txnID := fs.String("txn-id", "", "txn id of the compensation; reusing one replays it (default: generated)")
	reference := fs.String("reference", "", "compensation reference, e.g. a ticket id (required)")
	reason := fs.String("reason", "", "free-text reason")
	sourceType := fs.String("source-type", string(ledger.SourceCompensation), "source type of the compensation")
	sourceID := fs.String("source-id", "", "source id of the compensation (default: generated)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	tenantID, err := requireUUID("tenant", *tenant)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(*original) == "" {
		return nil, fmt.Errorf("%w: -original is required", errUsage)
	}
	if *txnID == "" {
		*txnID = ledger.NewTxnID()
	}
	if *sourceID == "" {
		*sourceID = uuid.NewString()
	}
	return &compensateArgs{
		TenantID: tenantID,
		Actor:    operator(*actor),
		Request: ledgerapp.CompensateRequest{
			OriginalTxnID:         strings.TrimSpace(*original),
			CompensationTxnID:     *txnID,
			CompensationReference: *reference,
			Reason:                *reason,
			SourceType:            *sourceType,
			SourceID:              *sourceID,
			PostedAt:              time.Now().UTC(),
		},
	}, nil
}

func runCompensate(ctx context.Context, app *application, args []string, out io.Writer) error {
	parsed, err := parseCompensate(args)
	if err != nil {
		return err
	}
	result, err := app.ledger.Compensate(ctx, parsed.TenantID, parsed.Actor, parsed.Request)
	if err != nil {
		return err
	}
	return writeJSON(out, toTransactionView(result.Transaction, result.Replayed))
}

func runVerifyChain(ctx context.Context, app *application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify-chain", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	receivableID := fs.String("receivable", "", "receivable id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tenantID, err := requireUUID("tenant", *tenant)
	if err != nil {
		return err
	}
	recID, err := requireUUID("receivable", *receivableID)
	if err != nil {
		return err
	}

	report, err := app.receivables.VerifyEventChain(ctx, tenantID, recID)
	if err != nil {
		return err
	}
	if err := writeJSON(out, receivableapp.ToChainVerificationResponse(report)); err != nil {
		return err
	}
	if !report.Valid {
		return shared.NewInvariantViolation("event_chain_broken", "%s", report.Reason)
	}
	return nil
}

func runOutboxPending(ctx context.Context, app *application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("outbox-pending", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	limit := fs.Int("limit", 50, "maximum rows to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tenantID, err := requireUUID("tenant", *tenant)
	if err != nil {
		return err
	}
	if *limit <= 0 {
		return fmt.Errorf("%w: -limit must be positive", errUsage)
	}

	var entries []*shared.OutboxEntry
	err = app.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := persistence.SetSessionTenant(tx, tenantID); err != nil {
			return err
		}
		var err error
		entries, err = event.NewGormOutboxRepository(tx).FindPending(ctx, tenantID, *limit)
		return err
	})
	if err != nil {
		return err
	}

	views := make([]outboxView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toOutboxView(e))
	}
	return writeJSON(out, views)
}

func runShowTxn(ctx context.Context, app *application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("show-txn", flag.ContinueOnError)
	tenant := fs.String("tenant", "", "tenant id (required)")
	txnID := fs.String("txn", "", "txn id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tenantID, err := requireUUID("tenant", *tenant)
	if err != nil {
		return err
	}
	txn, err := app.ledger.Transaction(ctx, tenantID, *txnID)
	if err != nil {
		return err
	}
	return writeJSON(out, toTransactionView(txn, false))
}

func requireUUID(name, value string) (uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return uuid.Nil, fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: -%s %q is not a uuid", errUsage, name, value)
	}
	return id, nil
}

func operator(id string) shared.Actor {
	if id == "" || id == shared.SystemActor.ID {
		return shared.SystemActor
	}
	return shared.Actor{ID: id, Type: shared.ActorTypeUser}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type transactionView struct {
	TxnID            string      `json:"txn_id"`
	SourceType       string      `json:"source_type"`
	SourceID         uuid.UUID   `json:"source_id"`
	PaymentReference string      `json:"payment_reference"`
	PostedAt         time.Time   `json:"posted_at"`
	Debits           string      `json:"debits"`
	Credits          string      `json:"credits"`
	Entries          []entryView `json:"entries"`
	Replayed         bool        `json:"replayed"`
}

type entryView struct {
	Position       int        `json:"position"`
	AccountCode    string     `json:"account_code"`
	Side           string     `json:"entry_side"`
	Amount         string     `json:"amount"`
	CounterpartyID *uuid.UUID `json:"counterparty_id,omitempty"`
}

func toTransactionView(txn *ledger.Transaction, replayed bool) transactionView {
	debits, credits := txn.Totals()
	view := transactionView{
		TxnID:            txn.TxnID,
		SourceType:       string(txn.Source.Kind),
		SourceID:         txn.Source.ID,
		PaymentReference: txn.PaymentReference,
		PostedAt:         txn.PostedAt,
		Debits:           valueobject.MoneyString(debits),
		Credits:          valueobject.MoneyString(credits),
		Entries:          make([]entryView, 0, len(txn.Entries)),
		Replayed:         replayed,
	}
	for _, e := range txn.Entries {
		view.Entries = append(view.Entries, entryView{
			Position:       e.EntryPosition,
			AccountCode:    string(e.AccountCode),
			Side:           string(e.Side),
			Amount:         valueobject.MoneyString(e.Amount),
			CounterpartyID: e.CounterpartyID,
		})
	}
	return view
}

type outboxView struct {
	ID             uuid.UUID      `json:"id"`
	AggregateType  string         `json:"aggregate_type"`
	AggregateID    uuid.UUID      `json:"aggregate_id"`
	EventType      string         `json:"event_type"`
	IdempotencyKey string         `json:"idempotency_key"`
	Payload        map[string]any `json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toOutboxView(e *shared.OutboxEntry) outboxView {
	return outboxView{
		ID:             e.ID,
		AggregateType:  e.AggregateType,
		AggregateID:    e.AggregateID,
		EventType:      e.EventType,
		IdempotencyKey: e.IdempotencyKey,
		Payload:        e.Payload,
		CreatedAt:      e.CreatedAt,
	}
}
