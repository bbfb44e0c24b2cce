package shared

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/shared/canonical"
)

// OutboxStatus represents the delivery status of an outbox entry.
// The core only ever writes PENDING; later states belong to the dispatcher.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// PayloadHashKey is the reserved payload key holding the payload fingerprint
const PayloadHashKey = "payload_hash"

// OutboxEntry represents a downstream notification recorded for at-least-once delivery
type OutboxEntry struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	AggregateType  string
	AggregateID    uuid.UUID
	EventType      string
	IdempotencyKey string
	Payload        map[string]any
	Status         OutboxStatus
	CreatedAt      time.Time
}

// PayloadHash returns the fingerprint stored under the reserved key, if any
func (e *OutboxEntry) PayloadHash() string {
	if e == nil || e.Payload == nil {
		return ""
	}
	h, _ := e.Payload[PayloadHashKey].(string)
	return h
}

// OutboxRepository defines the persistence the enqueuer needs
type OutboxRepository interface {
	// InsertIfAbsent inserts the entry unless (tenant, idempotency_key) exists.
	// It reports whether a row was written.
	InsertIfAbsent(ctx context.Context, entry *OutboxEntry) (bool, error)
	// FindByIdempotencyKey loads an entry by its key
	FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*OutboxEntry, error)
}

// EnqueueRequest describes one notification to record
type EnqueueRequest struct {
	TenantID       uuid.UUID
	AggregateType  string
	AggregateID    uuid.UUID
	EventType      string
	IdempotencyKey string
	Payload        map[string]any
	// ConflictCode and ConflictMessage are returned when the key was already
	// used with a different payload.
	ConflictCode    string
	ConflictMessage string
}

// EnqueueResult reports what happened to an enqueue request
type EnqueueResult struct {
	Entry    *OutboxEntry
	Enqueued bool
}

// OutboxEnqueuer records outbox entries exactly once per idempotency key
type OutboxEnqueuer struct {
	now func() time.Time
}

// NewOutboxEnqueuer creates an enqueuer using the wall clock
func NewOutboxEnqueuer() *OutboxEnqueuer {
	return &OutboxEnqueuer{now: time.Now}
}

// Enqueue stamps the payload with its fingerprint and inserts it. A repeat
// of the same key with the same payload is a silent no-op; a different
// payload yields a conflict error carrying the caller's code.
func (q *OutboxEnqueuer) Enqueue(ctx context.Context, repo OutboxRepository, req EnqueueRequest) (*EnqueueResult, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, ErrIdempotencyKeyRequired
	}
	if req.AggregateType == "" || req.EventType == "" {
		return nil, NewDomainError("outbox_event_invalid", "outbox aggregate type and event type are required")
	}

	payload := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		if k == PayloadHashKey {
			continue
		}
		payload[k] = v
	}
	hash, err := canonical.Fingerprint(payload)
	if err != nil {
		return nil, fmt.Errorf("fingerprint outbox payload: %w", err)
	}
	payload[PayloadHashKey] = hash

	entry := &OutboxEntry{
		ID:             uuid.New(),
		TenantID:       req.TenantID,
		AggregateType:  req.AggregateType,
		AggregateID:    req.AggregateID,
		EventType:      req.EventType,
		IdempotencyKey: req.IdempotencyKey,
		Payload:        payload,
		Status:         OutboxStatusPending,
		CreatedAt:      q.now().UTC(),
	}

	inserted, err := repo.InsertIfAbsent(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("insert outbox entry: %w", err)
	}
	if inserted {
		return &EnqueueResult{Entry: entry, Enqueued: true}, nil
	}

	existing, err := repo.FindByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("load existing outbox entry: %w", err)
	}
	if existing.PayloadHash() == hash {
		return &EnqueueResult{Entry: existing, Enqueued: false}, nil
	}

	code, msg := req.ConflictCode, req.ConflictMessage
	if code == "" {
		code = "outbox_payload_conflict"
	}
	if msg == "" {
		msg = fmt.Sprintf("outbox key %s already enqueued with a different payload", req.IdempotencyKey)
	}
	return nil, NewConflictError(code, "%s", msg)
}
