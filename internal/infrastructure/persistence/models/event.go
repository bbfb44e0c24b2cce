package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/receivable"
)

// ReceivableEventModel is the persistence model for one link of a receivable's
// hash chain. (receivable_id, sequence) and event_hash are unique.
type ReceivableEventModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"type:uuid;not null;index"`
	ReceivableID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_receivable_events_seq,priority:1"`
	Sequence     int64     `gorm:"not null;uniqueIndex:idx_receivable_events_seq,priority:2"`
	EventType    string    `gorm:"type:varchar(64);not null"`
	OccurredAt   time.Time `gorm:"not null"`
	RequestID    string    `gorm:"type:varchar(255)"`
	PrevHash     *string   `gorm:"type:varchar(64)"`
	EventHash    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_receivable_events_hash"`
	PayloadJSON  string    `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceivableEventModel) TableName() string {
	return "receivable_events"
}

// ToDomain converts the persistence model to a domain Event
func (m *ReceivableEventModel) ToDomain() *receivable.Event {
	return &receivable.Event{
		ID:           m.ID,
		TenantID:     m.TenantID,
		ReceivableID: m.ReceivableID,
		Sequence:     m.Sequence,
		EventType:    m.EventType,
		OccurredAt:   m.OccurredAt.UTC(),
		RequestID:    m.RequestID,
		PrevHash:     derefString(m.PrevHash),
		EventHash:    m.EventHash,
		Payload:      lenientJSON(m.TableName(), "payload", m.PayloadJSON),
		CreatedAt:    m.CreatedAt,
	}
}

// ReceivableEventModelFromDomain creates a persistence model from a domain Event
func ReceivableEventModelFromDomain(e *receivable.Event) *ReceivableEventModel {
	return &ReceivableEventModel{
		ID:           e.ID,
		TenantID:     e.TenantID,
		ReceivableID: e.ReceivableID,
		Sequence:     e.Sequence,
		EventType:    e.EventType,
		OccurredAt:   e.OccurredAt,
		RequestID:    e.RequestID,
		PrevHash:     nullableString(e.PrevHash),
		EventHash:    e.EventHash,
		PayloadJSON:  encodeJSON(e.Payload),
		CreatedAt:    e.CreatedAt,
	}
}
