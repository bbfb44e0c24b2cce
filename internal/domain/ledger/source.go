package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/anticipa/backend/internal/domain/shared"
)

// SourceKind enumerates the business records that can originate a ledger transaction
type SourceKind string

const (
	SourcePaymentSettlement  SourceKind = "RECEIVABLE_PAYMENT_SETTLEMENT"
	SourceCompensation       SourceKind = "LEDGER_COMPENSATION"
	SourceAnticipationFunded SourceKind = "ANTICIPATION_FUNDING"
	SourceManualAdjustment   SourceKind = "MANUAL_ADJUSTMENT"
)

var sourceKinds = map[SourceKind]struct{}{
	SourcePaymentSettlement:  {},
	SourceCompensation:       {},
	SourceAnticipationFunded: {},
	SourceManualAdjustment:   {},
}

// IsValid checks the kind against the known set
func (k SourceKind) IsValid() bool {
	_, ok := sourceKinds[k]
	return ok
}

// Source is the typed reference from a ledger transaction to the record that caused it.
// It is a weak reference used for audit lookups only.
type Source struct {
	Kind SourceKind
	ID   uuid.UUID
}

// NewSource builds a validated source
func NewSource(kind SourceKind, id uuid.UUID) (Source, error) {
	s := Source{Kind: kind, ID: id}
	return s, s.Validate()
}

// ParseSource validates an untyped (type, id) pair arriving from a caller
func ParseSource(sourceType, sourceID string) (Source, error) {
	sourceType = strings.TrimSpace(sourceType)
	sourceID = strings.TrimSpace(sourceID)
	if sourceType == "" {
		return Source{}, shared.NewDomainError("source_type_required", "source type is required")
	}
	if sourceID == "" {
		return Source{}, shared.NewDomainError("source_id_required", "source id is required")
	}
	kind := SourceKind(strings.ToUpper(sourceType))
	if !kind.IsValid() {
		return Source{}, shared.NewValidationError("invalid_source_type", "unknown source type %q", sourceType)
	}
	id, err := uuid.Parse(sourceID)
	if err != nil {
		return Source{}, shared.NewValidationError("invalid_source_id", "source id %q is not a valid uuid", sourceID)
	}
	return Source{Kind: kind, ID: id}, nil
}

// Validate checks kind and id
func (s Source) Validate() error {
	if s.Kind == "" {
		return shared.NewDomainError("source_type_required", "source type is required")
	}
	if !s.Kind.IsValid() {
		return shared.NewValidationError("invalid_source_type", "unknown source type %q", s.Kind)
	}
	if s.ID == uuid.Nil {
		return shared.NewDomainError("source_id_required", "source id is required")
	}
	return nil
}

// String renders "KIND:id"
func (s Source) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}
