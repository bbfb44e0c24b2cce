package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anticipa/backend/internal/domain/shared"
)

func TestMemoryDocumentStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDocumentStore()

	t.Run("missing object is not found", func(t *testing.T) {
		obj, err := s.Stat(ctx, "contracts/r-1.pdf")
		assert.Nil(t, obj)
		assert.True(t, shared.IsNotFound(err))
		assert.Equal(t, "document_not_found", shared.ErrorCode(err))
	})

	t.Run("put then stat", func(t *testing.T) {
		digest, err := s.Put(ctx, "contracts/r-1.pdf", []byte("abc"))
		require.NoError(t, err)
		assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", digest)

		obj, err := s.Stat(ctx, "contracts/r-1.pdf")
		require.NoError(t, err)
		assert.Equal(t, int64(3), obj.SizeBytes)
		assert.Equal(t, digest, obj.SHA256)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := s.Put(ctx, "", []byte("x"))
		require.Error(t, err)
		_, err = s.Stat(ctx, "")
		require.Error(t, err)
	})
}
