package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormReceivableRepository implements receivable.Repository using GORM
type GormReceivableRepository struct {
	db *gorm.DB
}

// NewGormReceivableRepository creates a new GormReceivableRepository
func NewGormReceivableRepository(db *gorm.DB) *GormReceivableRepository {
	return &GormReceivableRepository{db: db}
}

// WithTx returns a new repository with the given transaction
func (r *GormReceivableRepository) WithTx(tx *gorm.DB) *GormReceivableRepository {
	return &GormReceivableRepository{db: tx}
}

// FindByID loads a receivable within a tenant
func (r *GormReceivableRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*receivable.Receivable, error) {
	return r.findOne(r.db.WithContext(ctx), "tenant_id = ? AND id = ?", tenantID, id)
}

// FindByIDForUpdate loads a receivable and locks its row
func (r *GormReceivableRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*receivable.Receivable, error) {
	return r.findOne(forUpdate(r.db.WithContext(ctx)), "tenant_id = ? AND id = ?", tenantID, id)
}

// FindByIdempotencyKeyForUpdate loads and locks the receivable created under key
func (r *GormReceivableRepository) FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*receivable.Receivable, error) {
	return r.findOne(forUpdate(r.db.WithContext(ctx)), "tenant_id = ? AND idempotency_key = ?", tenantID, key)
}

func (r *GormReceivableRepository) findOne(db *gorm.DB, query string, args ...any) (*receivable.Receivable, error) {
	var model models.ReceivableModel
	if err := db.Where(query, args...).First(&model).Error; err != nil {
		return nil, notFound(err, "receivable_not_found", "receivable not found")
	}
	return model.ToDomain(), nil
}

// Create inserts a receivable
func (r *GormReceivableRepository) Create(ctx context.Context, rec *receivable.Receivable) error {
	return r.db.WithContext(ctx).Create(models.ReceivableModelFromDomain(rec)).Error
}

// UpdateStatus persists a status change
func (r *GormReceivableRepository) UpdateStatus(ctx context.Context, rec *receivable.Receivable) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReceivableModel{}).
		Where("tenant_id = ? AND id = ?", rec.TenantID, rec.ID).
		Updates(map[string]any{
			"status":     rec.Status,
			"updated_at": updatedAt(rec.UpdatedAt),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "receivable_not_found", "receivable %s not found", rec.ID)
	}
	return nil
}

// GormAllocationRepository implements receivable.AllocationRepository using GORM
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GormAllocationRepository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// WithTx returns a new repository with the given transaction
func (r *GormAllocationRepository) WithTx(tx *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: tx}
}

// CreateBatch inserts allocations created with their receivable
func (r *GormAllocationRepository) CreateBatch(ctx context.Context, allocations []*receivable.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	rows := make([]*models.AllocationModel, len(allocations))
	for i, a := range allocations {
		rows[i] = models.AllocationModelFromDomain(a)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListByReceivable lists allocations ordered by sequence
func (r *GormAllocationRepository) ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*receivable.Allocation, error) {
	return r.list(r.db.WithContext(ctx), tenantID, receivableID)
}

// ListByReceivableForUpdate lists and locks allocations ordered by sequence
func (r *GormAllocationRepository) ListByReceivableForUpdate(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*receivable.Allocation, error) {
	return r.list(forUpdate(r.db.WithContext(ctx)), tenantID, receivableID)
}

func (r *GormAllocationRepository) list(db *gorm.DB, tenantID, receivableID uuid.UUID) ([]*receivable.Allocation, error) {
	var rows []models.AllocationModel
	if err := db.
		Where("tenant_id = ? AND receivable_id = ?", tenantID, receivableID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*receivable.Allocation, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByIDForUpdate loads and locks an allocation
func (r *GormAllocationRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*receivable.Allocation, error) {
	var model models.AllocationModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		return nil, notFound(err, "allocation_not_found", "allocation %s not found", id)
	}
	return model.ToDomain(), nil
}

// UpdateStatus persists a status change
func (r *GormAllocationRepository) UpdateStatus(ctx context.Context, a *receivable.Allocation) error {
	result := r.db.WithContext(ctx).
		Model(&models.AllocationModel{}).
		Where("tenant_id = ? AND id = ?", a.TenantID, a.ID).
		Updates(map[string]any{
			"status":     a.Status,
			"updated_at": updatedAt(a.UpdatedAt),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "allocation_not_found", "allocation %s not found", a.ID)
	}
	return nil
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var (
	_ receivable.Repository           = (*GormReceivableRepository)(nil)
	_ receivable.AllocationRepository = (*GormAllocationRepository)(nil)
)
