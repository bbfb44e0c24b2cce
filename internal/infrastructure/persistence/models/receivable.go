package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/anticipa/backend/internal/domain/receivable"
)

// ReceivableModel is the persistence model for a receivable
type ReceivableModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_receivables_tenant_key,priority:1"`
	IdempotencyKey string            `gorm:"type:varchar(255);not null;uniqueIndex:idx_receivables_tenant_key,priority:2"`
	PayloadHash    string            `gorm:"type:varchar(64)"`
	DebtorID       uuid.UUID         `gorm:"type:uuid;not null"`
	CreditorID     uuid.UUID         `gorm:"type:uuid;not null"`
	BeneficiaryID  uuid.UUID         `gorm:"type:uuid;not null"`
	GrossAmount    decimal.Decimal   `gorm:"type:numeric(20,2);not null"`
	DueDate        *time.Time        `gorm:"type:date"`
	Status         receivable.Status `gorm:"type:varchar(32);not null"`
	CreatedAt      time.Time         `gorm:"not null"`
	UpdatedAt      time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceivableModel) TableName() string {
	return "receivables"
}

// ToDomain converts the persistence model to a domain Receivable
func (m *ReceivableModel) ToDomain() *receivable.Receivable {
	return &receivable.Receivable{
		ID:             m.ID,
		TenantID:       m.TenantID,
		IdempotencyKey: m.IdempotencyKey,
		PayloadHash:    m.PayloadHash,
		DebtorID:       m.DebtorID,
		CreditorID:     m.CreditorID,
		BeneficiaryID:  m.BeneficiaryID,
		GrossAmount:    money(m.GrossAmount),
		DueDate:        m.DueDate,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// ReceivableModelFromDomain creates a persistence model from a domain Receivable
func ReceivableModelFromDomain(r *receivable.Receivable) *ReceivableModel {
	return &ReceivableModel{
		ID:             r.ID,
		TenantID:       r.TenantID,
		IdempotencyKey: r.IdempotencyKey,
		PayloadHash:    r.PayloadHash,
		DebtorID:       r.DebtorID,
		CreditorID:     r.CreditorID,
		BeneficiaryID:  r.BeneficiaryID,
		GrossAmount:    r.GrossAmount,
		DueDate:        r.DueDate,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// AllocationModel is the persistence model for a receivable allocation
type AllocationModel struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID                   `gorm:"type:uuid;not null;index"`
	ReceivableID     uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_allocations_receivable_seq,priority:1"`
	Sequence         int                         `gorm:"not null;uniqueIndex:idx_allocations_receivable_seq,priority:2"`
	Name             string                      `gorm:"type:varchar(200);not null"`
	GrossAmount      decimal.Decimal             `gorm:"type:numeric(20,2);not null"`
	TaxReserveAmount decimal.Decimal             `gorm:"type:numeric(20,2);not null"`
	Status           receivable.AllocationStatus `gorm:"type:varchar(32);not null"`
	MetadataJSON     string                      `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt        time.Time                   `gorm:"not null"`
	UpdatedAt        time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AllocationModel) TableName() string {
	return "receivable_allocations"
}

// ToDomain converts the persistence model to a domain Allocation
func (m *AllocationModel) ToDomain() *receivable.Allocation {
	return &receivable.Allocation{
		ID:               m.ID,
		TenantID:         m.TenantID,
		ReceivableID:     m.ReceivableID,
		Sequence:         m.Sequence,
		Name:             m.Name,
		GrossAmount:      money(m.GrossAmount),
		TaxReserveAmount: money(m.TaxReserveAmount),
		Status:           m.Status,
		Metadata:         lenientJSON(m.TableName(), "metadata", m.MetadataJSON),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// AllocationModelFromDomain creates a persistence model from a domain Allocation
func AllocationModelFromDomain(a *receivable.Allocation) *AllocationModel {
	return &AllocationModel{
		ID:               a.ID,
		TenantID:         a.TenantID,
		ReceivableID:     a.ReceivableID,
		Sequence:         a.Sequence,
		Name:             a.Name,
		GrossAmount:      a.GrossAmount,
		TaxReserveAmount: a.TaxReserveAmount,
		Status:           a.Status,
		MetadataJSON:     encodeJSON(a.Metadata),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// AnticipationRequestModel is the persistence model for an anticipation request
type AnticipationRequestModel struct {
	ID              uuid.UUID                     `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID                     `gorm:"type:uuid;not null;uniqueIndex:idx_anticipation_tenant_key,priority:1"`
	ReceivableID    uuid.UUID                     `gorm:"type:uuid;not null;index:idx_anticipation_receivable_status,priority:1"`
	AllocationID    *uuid.UUID                    `gorm:"type:uuid"`
	IdempotencyKey  string                        `gorm:"type:varchar(255);not null;uniqueIndex:idx_anticipation_tenant_key,priority:2"`
	PayloadHash     string                        `gorm:"type:varchar(64)"`
	RequestedAmount decimal.Decimal               `gorm:"type:numeric(20,2);not null"`
	DiscountRate    decimal.Decimal               `gorm:"type:numeric(12,8);not null"`
	DiscountAmount  decimal.Decimal               `gorm:"type:numeric(20,2);not null"`
	NetAmount       decimal.Decimal               `gorm:"type:numeric(20,2);not null"`
	Status          receivable.AnticipationStatus `gorm:"type:varchar(32);not null;index:idx_anticipation_receivable_status,priority:2"`
	RequestedAt     time.Time                     `gorm:"not null"`
	CreatedAt       time.Time                     `gorm:"not null"`
	UpdatedAt       time.Time                     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AnticipationRequestModel) TableName() string {
	return "anticipation_requests"
}

// ToDomain converts the persistence model to a domain AnticipationRequest
func (m *AnticipationRequestModel) ToDomain() *receivable.AnticipationRequest {
	return &receivable.AnticipationRequest{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ReceivableID:    m.ReceivableID,
		AllocationID:    m.AllocationID,
		IdempotencyKey:  m.IdempotencyKey,
		PayloadHash:     m.PayloadHash,
		RequestedAmount: money(m.RequestedAmount),
		DiscountRate:    rate(m.DiscountRate),
		DiscountAmount:  money(m.DiscountAmount),
		NetAmount:       money(m.NetAmount),
		Status:          m.Status,
		RequestedAt:     m.RequestedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// AnticipationRequestModelFromDomain creates a persistence model from a domain AnticipationRequest
func AnticipationRequestModelFromDomain(a *receivable.AnticipationRequest) *AnticipationRequestModel {
	return &AnticipationRequestModel{
		ID:              a.ID,
		TenantID:        a.TenantID,
		ReceivableID:    a.ReceivableID,
		AllocationID:    a.AllocationID,
		IdempotencyKey:  a.IdempotencyKey,
		PayloadHash:     a.PayloadHash,
		RequestedAmount: a.RequestedAmount,
		DiscountRate:    a.DiscountRate,
		DiscountAmount:  a.DiscountAmount,
		NetAmount:       a.NetAmount,
		Status:          a.Status,
		RequestedAt:     a.RequestedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// AnticipationStatusHistoryModel is the persistence model for one status change.
// Rows written by the settlement engine carry no idempotency key.
type AnticipationStatusHistoryModel struct {
	ID                    uuid.UUID                     `gorm:"type:uuid;primaryKey"`
	TenantID              uuid.UUID                     `gorm:"type:uuid;not null;uniqueIndex:idx_anticipation_history_tenant_key,priority:1"`
	AnticipationRequestID uuid.UUID                     `gorm:"type:uuid;not null;index"`
	FromStatus            receivable.AnticipationStatus `gorm:"type:varchar(32);not null"`
	ToStatus              receivable.AnticipationStatus `gorm:"type:varchar(32);not null"`
	Reason                string                        `gorm:"type:text"`
	ActorID               string                        `gorm:"type:varchar(255)"`
	IdempotencyKey        *string                       `gorm:"type:varchar(255);uniqueIndex:idx_anticipation_history_tenant_key,priority:2"`
	PayloadHash           string                        `gorm:"type:varchar(64)"`
	CreatedAt             time.Time                     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AnticipationStatusHistoryModel) TableName() string {
	return "anticipation_status_history"
}

// ToDomain converts the persistence model to a domain StatusHistory
func (m *AnticipationStatusHistoryModel) ToDomain() *receivable.StatusHistory {
	return &receivable.StatusHistory{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		AnticipationRequestID: m.AnticipationRequestID,
		FromStatus:            m.FromStatus,
		ToStatus:              m.ToStatus,
		Reason:                m.Reason,
		ActorID:               m.ActorID,
		IdempotencyKey:        derefString(m.IdempotencyKey),
		PayloadHash:           m.PayloadHash,
		CreatedAt:             m.CreatedAt,
	}
}

// AnticipationStatusHistoryModelFromDomain creates a persistence model from a domain StatusHistory
func AnticipationStatusHistoryModelFromDomain(h *receivable.StatusHistory) *AnticipationStatusHistoryModel {
	return &AnticipationStatusHistoryModel{
		ID:                    h.ID,
		TenantID:              h.TenantID,
		AnticipationRequestID: h.AnticipationRequestID,
		FromStatus:            h.FromStatus,
		ToStatus:              h.ToStatus,
		Reason:                h.Reason,
		ActorID:               h.ActorID,
		IdempotencyKey:        nullableString(h.IdempotencyKey),
		PayloadHash:           h.PayloadHash,
		CreatedAt:             h.CreatedAt,
	}
}

// ReceivableDocumentModel is the persistence model for a signed document attachment
type ReceivableDocumentModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_documents_tenant_key,priority:1"`
	ReceivableID   uuid.UUID `gorm:"type:uuid;not null;index"`
	IdempotencyKey string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_documents_tenant_key,priority:2"`
	PayloadHash    string    `gorm:"type:varchar(64)"`
	DocumentType   string    `gorm:"type:varchar(64);not null"`
	StorageKey     string    `gorm:"type:varchar(1024);not null"`
	SHA256         string    `gorm:"column:sha256;type:varchar(64);not null"`
	SizeBytes      int64     `gorm:"not null"`
	SignedAt       time.Time `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceivableDocumentModel) TableName() string {
	return "receivable_documents"
}

// ToDomain converts the persistence model to a domain SignedDocument
func (m *ReceivableDocumentModel) ToDomain() *receivable.SignedDocument {
	return &receivable.SignedDocument{
		ID:             m.ID,
		TenantID:       m.TenantID,
		ReceivableID:   m.ReceivableID,
		IdempotencyKey: m.IdempotencyKey,
		PayloadHash:    m.PayloadHash,
		DocumentType:   m.DocumentType,
		StorageKey:     m.StorageKey,
		SHA256:         m.SHA256,
		SizeBytes:      m.SizeBytes,
		SignedAt:       m.SignedAt,
		CreatedAt:      m.CreatedAt,
	}
}

// ReceivableDocumentModelFromDomain creates a persistence model from a domain SignedDocument
func ReceivableDocumentModelFromDomain(d *receivable.SignedDocument) *ReceivableDocumentModel {
	return &ReceivableDocumentModel{
		ID:             d.ID,
		TenantID:       d.TenantID,
		ReceivableID:   d.ReceivableID,
		IdempotencyKey: d.IdempotencyKey,
		PayloadHash:    d.PayloadHash,
		DocumentType:   d.DocumentType,
		StorageKey:     d.StorageKey,
		SHA256:         d.SHA256,
		SizeBytes:      d.SizeBytes,
		SignedAt:       d.SignedAt,
		CreatedAt:      d.CreatedAt,
	}
}
