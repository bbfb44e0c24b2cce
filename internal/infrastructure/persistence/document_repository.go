package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/infrastructure/persistence/models"
)

// GormDocumentRepository implements receivable.DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// FindByIdempotencyKeyForUpdate loads and locks the attachment written under key
func (r *GormDocumentRepository) FindByIdempotencyKeyForUpdate(ctx context.Context, tenantID uuid.UUID, key string) (*receivable.SignedDocument, error) {
	var model models.ReceivableDocumentModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error; err != nil {
		return nil, notFound(err, "document_not_found", "document not found")
	}
	return model.ToDomain(), nil
}

// Create inserts an attachment
func (r *GormDocumentRepository) Create(ctx context.Context, doc *receivable.SignedDocument) error {
	return r.db.WithContext(ctx).Create(models.ReceivableDocumentModelFromDomain(doc)).Error
}

// ListByReceivable lists a receivable's attachments
func (r *GormDocumentRepository) ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]*receivable.SignedDocument, error) {
	var rows []models.ReceivableDocumentModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receivable_id = ?", tenantID, receivableID).
		Order("signed_at ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*receivable.SignedDocument, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ receivable.DocumentRepository = (*GormDocumentRepository)(nil)
