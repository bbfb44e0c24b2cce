package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormSettlementRepository implements receivable.SettlementRepository using GORM
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// WithTx returns a new repository with the given transaction
func (r *GormSettlementRepository) WithTx(tx *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: tx}
}

// FindByIdempotencyKeyForUpdate loads and locks the settlement written under key
func (r *GormSettlementRepository) FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*receivable.PaymentSettlement, error) {
	var model models.PaymentSettlementModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error; err != nil {
		return nil, notFound(err, "settlement_not_found", "settlement not found")
	}
	return model.ToDomain(), nil
}

// InsertIfAbsent inserts the settlement unless its (tenant, idempotency_key)
// already exists. A false result means a concurrent writer won the key.
func (r *GormSettlementRepository) InsertIfAbsent(ctx context.Context, s *receivable.PaymentSettlement) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(models.PaymentSettlementModelFromDomain(s))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListByAllocation lists settlements paid against an allocation
func (r *GormSettlementRepository) ListByAllocation(ctx context.Context, tenantID, allocationID uuid.UUID) ([]*receivable.PaymentSettlement, error) {
	return r.list(ctx, "tenant_id = ? AND allocation_id = ?", tenantID, allocationID)
}

// ListByReceivable lists settlements paid against a receivable
func (r *GormSettlementRepository) ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*receivable.PaymentSettlement, error) {
	return r.list(ctx, "tenant_id = ? AND receivable_id = ?", tenantID, receivableID)
}

func (r *GormSettlementRepository) list(ctx context.Context, query string, args ...any) ([]*receivable.PaymentSettlement, error) {
	var rows []models.PaymentSettlementModel
	if err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("paid_at ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*receivable.PaymentSettlement, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// CreateEntries inserts settlement entries
func (r *GormSettlementRepository) CreateEntries(ctx context.Context, entries []*receivable.SettlementEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.SettlementEntryModel, len(entries))
	for i, e := range entries {
		rows[i] = models.SettlementEntryModelFromDomain(e)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ListEntriesBySettlement lists a settlement's entries in insertion order
func (r *GormSettlementRepository) ListEntriesBySettlement(ctx context.Context, tenantID, settlementID uuid.UUID) ([]*receivable.SettlementEntry, error) {
	var rows []models.SettlementEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND settlement_id = ?", tenantID, settlementID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return entriesToDomain(rows), nil
}

// ListEntriesByRequests lists entries settled against any of the requests
func (r *GormSettlementRepository) ListEntriesByRequests(ctx context.Context, tenantID uuid.UUID, requestIDs []uuid.UUID) ([]*receivable.SettlementEntry, error) {
	if len(requestIDs) == 0 {
		return nil, nil
	}
	var rows []models.SettlementEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND anticipation_request_id IN ?", tenantID, requestIDs).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return entriesToDomain(rows), nil
}

func entriesToDomain(rows []models.SettlementEntryModel) []*receivable.SettlementEntry {
	out := make([]*receivable.SettlementEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

var _ receivable.SettlementRepository = (*GormSettlementRepository)(nil)
