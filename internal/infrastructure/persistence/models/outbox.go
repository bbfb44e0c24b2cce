package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/shared"
)

// OutboxEntryModel is the persistence model for notifications stored in the outbox.
// It implements the transactional outbox pattern: rows commit with the mutation
// that produced them and an external dispatcher delivers them. The retry columns
// belong to that dispatcher; the core only inserts PENDING rows.
type OutboxEntryModel struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_outbox_tenant_key,priority:1;index:idx_outbox_tenant_status,priority:1"`
	IdempotencyKey string              `gorm:"type:varchar(255);not null;uniqueIndex:idx_outbox_tenant_key,priority:2"`
	EventType      string              `gorm:"type:varchar(255);not null"`
	AggregateID    uuid.UUID           `gorm:"type:uuid;not null"`
	AggregateType  string              `gorm:"type:varchar(255);not null"`
	PayloadJSON    string              `gorm:"column:payload;type:jsonb;not null"`
	Status         shared.OutboxStatus `gorm:"type:varchar(20);not null;index:idx_outbox_tenant_status,priority:2"`
	RetryCount     int                 `gorm:"not null"`
	LastError      string              `gorm:"type:text"`
	NextRetryAt    *time.Time          `gorm:"index:idx_outbox_next_retry"`
	ProcessedAt    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEntryModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the persistence model to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:             m.ID,
		TenantID:       m.TenantID,
		AggregateType:  m.AggregateType,
		AggregateID:    m.AggregateID,
		EventType:      m.EventType,
		IdempotencyKey: m.IdempotencyKey,
		Payload:        lenientJSON(m.TableName(), "payload", m.PayloadJSON),
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain OutboxEntry
func (m *OutboxEntryModel) FromDomain(e *shared.OutboxEntry) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.IdempotencyKey = e.IdempotencyKey
	m.EventType = e.EventType
	m.AggregateID = e.AggregateID
	m.AggregateType = e.AggregateType
	m.PayloadJSON = encodeJSON(e.Payload)
	m.Status = e.Status
	m.CreatedAt = e.CreatedAt
}

// OutboxEntryModelFromDomain creates a new persistence model from a domain OutboxEntry
func OutboxEntryModelFromDomain(e *shared.OutboxEntry) *OutboxEntryModel {
	m := &OutboxEntryModel{}
	m.FromDomain(e)
	return m
}
