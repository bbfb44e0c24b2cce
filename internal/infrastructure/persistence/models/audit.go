package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/domain/shared"
)

// AuditLogModel is the persistence model for an audit record
type AuditLogModel struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_audit_logs_entity,priority:1"`
	Action         audit.Action     `gorm:"type:varchar(64);not null;index"`
	ActorID        string           `gorm:"type:varchar(255)"`
	ActorType      shared.ActorType `gorm:"type:varchar(16)"`
	EntityType     string           `gorm:"type:varchar(64);not null;index:idx_audit_logs_entity,priority:2"`
	EntityID       string           `gorm:"type:varchar(255);index:idx_audit_logs_entity,priority:3"`
	IdempotencyKey string           `gorm:"type:varchar(255)"`
	ErrorCode      string           `gorm:"type:varchar(64)"`
	DetailsJSON    string           `gorm:"column:details;type:jsonb;not null"`
	CreatedAt      time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// ToDomain converts the persistence model to a domain audit Record
func (m *AuditLogModel) ToDomain() *audit.Record {
	return &audit.Record{
		ID:             m.ID,
		TenantID:       m.TenantID,
		Action:         m.Action,
		ActorID:        m.ActorID,
		ActorType:      m.ActorType,
		EntityType:     m.EntityType,
		EntityID:       m.EntityID,
		IdempotencyKey: m.IdempotencyKey,
		ErrorCode:      m.ErrorCode,
		Details:        lenientJSON(m.TableName(), "details", m.DetailsJSON),
		CreatedAt:      m.CreatedAt,
	}
}

// AuditLogModelFromDomain creates a persistence model from a domain audit Record
func AuditLogModelFromDomain(r *audit.Record) *AuditLogModel {
	return &AuditLogModel{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Action:         r.Action,
		ActorID:        r.ActorID,
		ActorType:      r.ActorType,
		EntityType:     r.EntityType,
		EntityID:       r.EntityID,
		IdempotencyKey: r.IdempotencyKey,
		ErrorCode:      r.ErrorCode,
		DetailsJSON:    encodeJSON(r.Details),
		CreatedAt:      r.CreatedAt,
	}
}
