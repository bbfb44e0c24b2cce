// Package audit holds the append-only audit trail written by money-moving
// operations and the forensic log of failed mutation attempts.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/shared"
)

// Action names a recorded audit event
type Action string

const (
	ActionCompensationRequested Action = "LEDGER_COMPENSATION_REQUESTED"
	ActionCompensationPosted    Action = "LEDGER_COMPENSATION_POSTED"
	ActionMutationFailed        Action = "MUTATION_FAILED"
)

// Record is one audit log row
type Record struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Action         Action
	ActorID        string
	ActorType      shared.ActorType
	EntityType     string
	EntityID       string
	IdempotencyKey string
	ErrorCode      string
	Details        map[string]any
	CreatedAt      time.Time
}

// NewRecord creates a record stamped with a fresh id and the current time
func NewRecord(tenantID uuid.UUID, action Action, actor shared.Actor, entityType, entityID string) *Record {
	return &Record{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Action:     action,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    map[string]any{},
		CreatedAt:  time.Now().UTC(),
	}
}

// Repository persists audit records
type Repository interface {
	// Append writes one record
	Append(ctx context.Context, record *Record) error
	// FindByEntity lists records for an entity, oldest first
	FindByEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]*Record, error)
}
