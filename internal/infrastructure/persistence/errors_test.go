package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/anticipa/backend/internal/domain/shared"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm translated", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres 23505", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "23514"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: receivable_events.event_hash"), true},
		{"unrelated", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestNotFound(t *testing.T) {
	err := notFound(gorm.ErrRecordNotFound, "receivable_not_found", "receivable %s not found", "r-1")
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, "receivable_not_found", shared.ErrorCode(err))

	other := errors.New("boom")
	assert.Same(t, other, notFound(other, "receivable_not_found", "x"))
}
