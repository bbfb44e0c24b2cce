package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormAnticipationRepository implements receivable.AnticipationRepository using GORM
type GormAnticipationRepository struct {
	db *gorm.DB
}

// NewGormAnticipationRepository creates a new GormAnticipationRepository
func NewGormAnticipationRepository(db *gorm.DB) *GormAnticipationRepository {
	return &GormAnticipationRepository{db: db}
}

// WithTx returns a new repository with the given transaction
func (r *GormAnticipationRepository) WithTx(tx *gorm.DB) *GormAnticipationRepository {
	return &GormAnticipationRepository{db: tx}
}

// Create inserts a request
func (r *GormAnticipationRepository) Create(ctx context.Context, req *receivable.AnticipationRequest) error {
	return r.db.WithContext(ctx).Create(models.AnticipationRequestModelFromDomain(req)).Error
}

// FindByID loads a request without locking it
func (r *GormAnticipationRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*receivable.AnticipationRequest, error) {
	return r.findByID(r.db.WithContext(ctx), tenantID, id)
}

// FindByIDForUpdate loads and locks a request
func (r *GormAnticipationRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*receivable.AnticipationRequest, error) {
	return r.findByID(forUpdate(r.db.WithContext(ctx)), tenantID, id)
}

func (r *GormAnticipationRepository) findByID(db *gorm.DB, tenantID, id uuid.UUID) (*receivable.AnticipationRequest, error) {
	var model models.AnticipationRequestModel
	if err := db.Where("tenant_id = ? AND id = ?", tenantID, id).First(&model).Error; err != nil {
		return nil, notFound(err, "anticipation_not_found", "anticipation request %s not found", id)
	}
	return model.ToDomain(), nil
}

// FindByIdempotencyKeyForUpdate loads and locks the request created under key
func (r *GormAnticipationRepository) FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*receivable.AnticipationRequest, error) {
	var model models.AnticipationRequestModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error; err != nil {
		return nil, notFound(err, "anticipation_not_found", "anticipation request not found")
	}
	return model.ToDomain(), nil
}

// ListOpenForUpdate locks the open requests of a receivable, oldest-requested
// first. With an allocation id it returns requests against that allocation
// plus requests made against the whole receivable.
func (r *GormAnticipationRepository) ListOpenForUpdate(ctx context.Context, tenantID, receivableID uuid.UUID, allocationID *uuid.UUID) ([]*receivable.AnticipationRequest, error) {
	query := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND receivable_id = ?", tenantID, receivableID).
		Where("status IN ?", receivable.OpenAnticipationStatuses)
	if allocationID != nil {
		query = query.Where("(allocation_id = ? OR allocation_id IS NULL)", *allocationID)
	}

	var rows []models.AnticipationRequestModel
	if err := query.Order("requested_at ASC, created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*receivable.AnticipationRequest, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// UpdateStatus persists a status change
func (r *GormAnticipationRepository) UpdateStatus(ctx context.Context, req *receivable.AnticipationRequest) error {
	result := r.db.WithContext(ctx).
		Model(&models.AnticipationRequestModel{}).
		Where("tenant_id = ? AND id = ?", req.TenantID, req.ID).
		Updates(map[string]any{
			"status":     req.Status,
			"updated_at": updatedAt(req.UpdatedAt),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "anticipation_not_found", "anticipation request %s not found", req.ID)
	}
	return nil
}

// AppendHistory writes a status history row
func (r *GormAnticipationRepository) AppendHistory(ctx context.Context, h *receivable.StatusHistory) error {
	return r.db.WithContext(ctx).Create(models.AnticipationStatusHistoryModelFromDomain(h)).Error
}

// FindHistoryByIdempotencyKeyForUpdate loads and locks the history row written under key
func (r *GormAnticipationRepository) FindHistoryByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*receivable.StatusHistory, error) {
	var model models.AnticipationStatusHistoryModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error; err != nil {
		return nil, notFound(err, "anticipation_history_not_found", "status history not found")
	}
	return model.ToDomain(), nil
}

// ListHistory lists a request's history oldest first
func (r *GormAnticipationRepository) ListHistory(ctx context.Context, tenantID, requestID uuid.UUID) ([]*receivable.StatusHistory, error) {
	var rows []models.AnticipationStatusHistoryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND anticipation_request_id = ?", tenantID, requestID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*receivable.StatusHistory, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ receivable.AnticipationRepository = (*GormAnticipationRepository)(nil)
