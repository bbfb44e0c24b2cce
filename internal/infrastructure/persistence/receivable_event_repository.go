package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormReceivableEventRepository implements receivable.EventRepository using GORM.
// The table is append-only; there is no update or delete path.
type GormReceivableEventRepository struct {
	db *gorm.DB
}

// NewGormReceivableEventRepository creates a new GormReceivableEventRepository
func NewGormReceivableEventRepository(db *gorm.DB) *GormReceivableEventRepository {
	return &GormReceivableEventRepository{db: db}
}

// LastEvent returns the highest-sequence event of a receivable's chain
func (r *GormReceivableEventRepository) LastEvent(ctx context.Context, tenantID, receivableID uuid.UUID) (*receivable.Event, error) {
	var model models.ReceivableEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receivable_id = ?", tenantID, receivableID).
		Order("sequence DESC").
		First(&model).Error; err != nil {
		return nil, notFound(err, "receivable_event_not_found", "receivable %s has no events", receivableID)
	}
	return model.ToDomain(), nil
}

// Append writes one event
func (r *GormReceivableEventRepository) Append(ctx context.Context, event *receivable.Event) error {
	return r.db.WithContext(ctx).Create(models.ReceivableEventModelFromDomain(event)).Error
}

// ListByReceivable returns the chain ordered by sequence
func (r *GormReceivableEventRepository) ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*receivable.Event, error) {
	var rows []models.ReceivableEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receivable_id = ?", tenantID, receivableID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*receivable.Event, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ receivable.EventRepository = (*GormReceivableEventRepository)(nil)
