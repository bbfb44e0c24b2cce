package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anticipa/backend/internal/domain/shared"
	"github.com/anticipa/backend/internal/infrastructure/config"
)

func TestNewS3DocumentStore_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3DocumentStore(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3DocumentStore(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3DocumentStore(&config.StorageConfig{Bucket: "b", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3DocumentStore(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config creates store", func(t *testing.T) {
		store, err := NewS3DocumentStore(&config.StorageConfig{
			Bucket:       "signed-documents",
			AccessKey:    "k",
			SecretKey:    "s",
			Endpoint:     "localhost:9000",
			UsePathStyle: true,
		}, WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		assert.Equal(t, "signed-documents", store.Bucket())
	})
}

func TestS3DocumentStore_EmptyKey(t *testing.T) {
	store, err := NewS3DocumentStore(&config.StorageConfig{
		Bucket:    "b",
		AccessKey: "k",
		SecretKey: "s",
		Endpoint:  "http://localhost:9000",
	})
	require.NoError(t, err)

	_, err = store.Stat(context.Background(), "")
	assert.ErrorContains(t, err, "storage key is required")

	_, err = store.Put(context.Background(), "", []byte("x"), "application/pdf")
	assert.ErrorContains(t, err, "storage key is required")
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", false, "http://localhost:9000"},
		{"minio:9000", false, "http://minio:9000"},
		{"s3.sa-east-1.amazonaws.com", true, "https://s3.sa-east-1.amazonaws.com"},
		{"http://minio:9000", true, "http://minio:9000"},
	}
	for _, tt := range tests {
		got, err := resolveEndpoint(tt.endpoint, tt.useSSL)
		require.NoError(t, err, tt.endpoint)
		assert.Equal(t, tt.want, got)
	}

	_, err := resolveEndpoint("ftp://minio:21", false)
	assert.ErrorContains(t, err, "scheme")
}

func TestChecksumToHex(t *testing.T) {
	tests := []struct {
		name     string
		checksum string
		want     string
	}{
		{"empty", "", ""},
		{"full object sha256 of abc", "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"multipart composite", "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=-3", ""},
		{"not base64", "%%%", ""},
		{"wrong length", "YWJj", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checksumToHex(tt.checksum))
		})
	}
}

// Integration tests run against a local S3-compatible server when
// STORAGE_INTEGRATION_ENDPOINT is set (e.g. MinIO on localhost:9000).
func newIntegrationStore(t *testing.T) *S3DocumentStore {
	t.Helper()
	endpoint := os.Getenv("STORAGE_INTEGRATION_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping integration test. Set STORAGE_INTEGRATION_ENDPOINT to enable.")
	}

	store, err := NewS3DocumentStore(&config.StorageConfig{
		Bucket:       "anticipa-integration",
		AccessKey:    os.Getenv("STORAGE_INTEGRATION_ACCESS_KEY"),
		SecretKey:    os.Getenv("STORAGE_INTEGRATION_SECRET_KEY"),
		Endpoint:     endpoint,
		UsePathStyle: true,
	}, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(context.Background()))
	return store
}

func TestIntegration_PutAndStat(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	digest, err := store.Put(ctx, "integration/contract.pdf", []byte("abc"), "application/pdf")
	require.NoError(t, err)

	obj, err := store.Stat(ctx, "integration/contract.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(3), obj.SizeBytes)
	assert.Equal(t, digest, obj.SHA256)

	_, err = store.Stat(ctx, "integration/missing.pdf")
	assert.True(t, shared.IsNotFound(err))
}
