package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ActorType identifies who issued a command
type ActorType string

const (
	ActorTypeUser    ActorType = "USER"
	ActorTypeService ActorType = "SERVICE"
	ActorTypeSystem  ActorType = "SYSTEM"
)

// Actor is the authenticated principal behind a command. Authorization is
// resolved before a command reaches the core; the actor is carried for audit.
type Actor struct {
	ID   string
	Type ActorType
}

// SystemActor is used by operator tooling
var SystemActor = Actor{ID: "system", Type: ActorTypeSystem}

// CommandContext carries the envelope every write-side command shares
type CommandContext struct {
	TenantID       uuid.UUID
	IdempotencyKey string
	RequestID      string
	Actor          Actor
}

// Validate checks the envelope fields required by every mutation
func (c CommandContext) Validate() error {
	if c.TenantID == uuid.Nil {
		return ErrTenantRequired
	}
	if strings.TrimSpace(c.IdempotencyKey) == "" {
		return ErrIdempotencyKeyRequired
	}
	return nil
}

// Key returns the trimmed idempotency key
func (c CommandContext) Key() string {
	return strings.TrimSpace(c.IdempotencyKey)
}
