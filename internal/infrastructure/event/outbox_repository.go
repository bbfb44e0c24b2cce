package event

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormOutboxRepository implements shared.OutboxRepository using GORM.
// Rows are only ever inserted here; delivery state is owned by the dispatcher.
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// InsertIfAbsent inserts the entry unless (tenant_id, idempotency_key) is
// already taken and reports whether a row was written
func (r *GormOutboxRepository) InsertIfAbsent(ctx context.Context, entry *shared.OutboxEntry) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(models.OutboxEntryModelFromDomain(entry))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByIdempotencyKey loads an entry by its key
func (r *GormOutboxRepository) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*shared.OutboxEntry, error) {
	var model models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("outbox_entry_not_found", "outbox entry %s not found", key)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindPending retrieves a tenant's pending entries, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, tenantID uuid.UUID, limit int) ([]*shared.OutboxEntry, error) {
	var rows []models.OutboxEntryModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]*shared.OutboxEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// Ensure GormOutboxRepository implements shared.OutboxRepository
var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
