package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/audit"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormAuditRepository implements audit.Repository using GORM
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append writes one record
func (r *GormAuditRepository) Append(ctx context.Context, record *audit.Record) error {
	return r.db.WithContext(ctx).Create(models.AuditLogModelFromDomain(record)).Error
}

// FindByEntity lists records for an entity, oldest first
func (r *GormAuditRepository) FindByEntity(ctx context.Context, tenantID uuid.UUID, entityType, entityID string) ([]*audit.Record, error) {
	var rows []models.AuditLogModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, entityType, entityID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*audit.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// SessionTenantAuditRepository appends each record in its own transaction
// with app.tenant_id set to the record's tenant. It serves as the failure log
// for mutations whose own transaction has already rolled back.
type SessionTenantAuditRepository struct {
	*GormAuditRepository
}

// NewSessionTenantAuditRepository creates a SessionTenantAuditRepository
func NewSessionTenantAuditRepository(db *gorm.DB) *SessionTenantAuditRepository {
	return &SessionTenantAuditRepository{GormAuditRepository: NewGormAuditRepository(db)}
}

// Append writes one record under the record's tenant
func (r *SessionTenantAuditRepository) Append(ctx context.Context, record *audit.Record) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := SetSessionTenant(tx, record.TenantID); err != nil {
			return err
		}
		return tx.Create(models.AuditLogModelFromDomain(record)).Error
	})
}

var (
	_ audit.Repository = (*GormAuditRepository)(nil)
	_ audit.Repository = (*SessionTenantAuditRepository)(nil)
)
