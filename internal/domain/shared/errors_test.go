package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Classification(t *testing.T) {
	conflict := NewConflictError("idempotency_conflict", "key %s reused", "k1")
	wrapped := fmt.Errorf("settle: %w", conflict)

	assert.True(t, IsIdempotencyConflict(wrapped))
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsInvariantViolation(wrapped))
	assert.Equal(t, "idempotency_conflict", ErrorCode(wrapped))
	assert.Equal(t, "key k1 reused", wrapped.Error()[len("settle: "):])

	inv := NewInvariantViolation("unbalanced_transaction", "debits 10 != credits 9")
	assert.True(t, IsInvariantViolation(inv))
	assert.False(t, IsValidation(inv))

	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "", ErrorCode(nil))
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := ErrAuditLogWriteFailed.WithCause(cause)

	assert.ErrorIs(t, err, ErrAuditLogWriteFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
}
