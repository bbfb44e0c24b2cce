package receivable

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/domain/shared/canonical"
)

// Event types appended to a receivable's chain
const (
	EventReceivableCreated         = "RECEIVABLE_CREATED"
	EventDocumentAttached          = "RECEIVABLE_DOCUMENT_ATTACHED"
	EventAnticipationRequested     = "ANTICIPATION_REQUESTED"
	EventAnticipationStatusChanged = "ANTICIPATION_STATUS_CHANGED"
	EventReceivablePaymentSettled  = "RECEIVABLE_PAYMENT_SETTLED"
)

// Event is one link of a receivable's append-only hash chain
type Event struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ReceivableID uuid.UUID
	Sequence     int64
	EventType    string
	OccurredAt   time.Time
	RequestID    string
	PrevHash     string // empty at sequence 1
	EventHash    string
	Payload      map[string]any
	CreatedAt    time.Time
}

// ComputeEventHash hashes the canonical form of the event's chained fields
func ComputeEventHash(receivableID uuid.UUID, sequence int64, eventType string, occurredAt time.Time, requestID, prevHash string, payload map[string]any) (string, error) {
	var prev any
	if prevHash != "" {
		prev = prevHash
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return canonical.Fingerprint(map[string]any{
		"receivable_id": receivableID.String(),
		"sequence":      sequence,
		"event_type":    eventType,
		"occurred_at":   canonical.FormatTime(occurredAt),
		"request_id":    requestID,
		"prev_hash":     prev,
		"payload":       payload,
	})
}

// Hash recomputes the event's hash from its stored fields
func (e *Event) Hash() (string, error) {
	return ComputeEventHash(e.ReceivableID, e.Sequence, e.EventType, e.OccurredAt, e.RequestID, e.PrevHash, e.Payload)
}

// EventRepository persists chain events
type EventRepository interface {
	// LastEvent returns the highest-sequence event, or a not-found error for an empty chain
	LastEvent(ctx context.Context, tenantID, receivableID uuid.UUID) (*Event, error)
	// Append writes one event. Storage rejects duplicate (receivable, sequence) and event hashes.
	Append(ctx context.Context, event *Event) error
	// ListByReceivable returns the chain ordered by sequence
	ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*Event, error)
}

// AppendRequest describes a state change to record
type AppendRequest struct {
	TenantID     uuid.UUID
	ReceivableID uuid.UUID
	EventType    string
	OccurredAt   time.Time
	RequestID    string
	Payload      map[string]any
}

// EventChain appends hash-linked events
type EventChain struct{}

// NewEventChain creates an event chain appender
func NewEventChain() *EventChain {
	return &EventChain{}
}

// Append links a new event after the current head of the receivable's chain.
// Callers hold the receivable row lock so the head cannot move underneath.
func (c *EventChain) Append(ctx context.Context, repo EventRepository, req AppendRequest) (*Event, error) {
	if strings.TrimSpace(req.EventType) == "" {
		return nil, shared.NewDomainError("event_type_required", "event type is required")
	}
	if req.OccurredAt.IsZero() {
		req.OccurredAt = time.Now()
	}
	occurredAt := req.OccurredAt.UTC().Truncate(time.Microsecond)

	payload, err := normalizePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	var sequence int64 = 1
	prevHash := ""
	last, err := repo.LastEvent(ctx, req.TenantID, req.ReceivableID)
	switch {
	case err == nil:
		sequence = last.Sequence + 1
		prevHash = last.EventHash
	case shared.IsNotFound(err):
	default:
		return nil, fmt.Errorf("load chain head: %w", err)
	}

	hash, err := ComputeEventHash(req.ReceivableID, sequence, req.EventType, occurredAt, req.RequestID, prevHash, payload)
	if err != nil {
		return nil, fmt.Errorf("hash event: %w", err)
	}

	event := &Event{
		ID:           uuid.New(),
		TenantID:     req.TenantID,
		ReceivableID: req.ReceivableID,
		Sequence:     sequence,
		EventType:    req.EventType,
		OccurredAt:   occurredAt,
		RequestID:    req.RequestID,
		PrevHash:     prevHash,
		EventHash:    hash,
		Payload:      payload,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}

// normalizePayload round-trips the payload through JSON so the hashed form is
// exactly what storage will return.
func normalizePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return canonical.Decode(raw)
}

// ChainReport is the outcome of verifying a receivable's event chain
type ChainReport struct {
	ReceivableID uuid.UUID
	EventCount   int
	Valid        bool
	BrokenAt     int64
	Reason       string
}

// VerifyChain recomputes every hash and checks sequence contiguity and
// prev_hash linkage. Events must be ordered by sequence.
func VerifyChain(receivableID uuid.UUID, events []*Event) ChainReport {
	report := ChainReport{ReceivableID: receivableID, EventCount: len(events), Valid: true}
	prevHash := ""
	for i, e := range events {
		expected := int64(i + 1)
		fail := func(reason string) ChainReport {
			report.Valid = false
			report.BrokenAt = e.Sequence
			report.Reason = reason
			return report
		}
		if e.ReceivableID != receivableID {
			return fail(fmt.Sprintf("event %s belongs to receivable %s", e.ID, e.ReceivableID))
		}
		if e.Sequence != expected {
			return fail(fmt.Sprintf("sequence gap: expected %d, found %d", expected, e.Sequence))
		}
		if e.PrevHash != prevHash {
			return fail(fmt.Sprintf("prev_hash at sequence %d does not match predecessor", e.Sequence))
		}
		hash, err := e.Hash()
		if err != nil {
			return fail(fmt.Sprintf("cannot hash event at sequence %d: %v", e.Sequence, err))
		}
		if hash != e.EventHash {
			return fail(fmt.Sprintf("event_hash mismatch at sequence %d", e.Sequence))
		}
		prevHash = e.EventHash
	}
	return report
}

// Err converts a broken report into an invariant violation
func (r ChainReport) Err() error {
	if r.Valid {
		return nil
	}
	return shared.NewInvariantViolation("event_chain_broken", "receivable %s: %s", r.ReceivableID, r.Reason)
}
