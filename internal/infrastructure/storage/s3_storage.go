// Package storage provides object storage lookups for signed receivable documents.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/anticipa/backend/internal/domain/receivable"
	"github.com/anticipa/backend/internal/domain/shared"
	infraconfig "github.com/anticipa/backend/internal/infrastructure/config"
)

// checksumMetadataKey is the user metadata key holding the hex SHA-256 of an object
const checksumMetadataKey = "sha256"

// Ensure S3DocumentStore implements receivable.DocumentStore
var _ receivable.DocumentStore = (*S3DocumentStore)(nil)

// S3DocumentStore resolves signed documents in an S3 bucket. Any
// S3-compatible service works; path-style addressing is configurable.
type S3DocumentStore struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// S3DocumentStoreOption is a functional option for configuring S3DocumentStore
type S3DocumentStoreOption func(*S3DocumentStore)

// WithLogger sets a custom logger for S3DocumentStore
func WithLogger(logger *zap.Logger) S3DocumentStoreOption {
	return func(s *S3DocumentStore) {
		s.logger = logger
	}
}

// Defaults for S3-compatible endpoints such as a local MinIO
const (
	defaultEndpoint = "localhost:9000"
	defaultRegion   = "us-east-1"
)

// NewS3DocumentStore builds a store over the configured bucket. Credentials
// are always static; the default AWS chain is never consulted for them.
func NewS3DocumentStore(cfg *infraconfig.StorageConfig, opts ...S3DocumentStoreOption) (*S3DocumentStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	for _, field := range []struct{ name, value string }{
		{"bucket", cfg.Bucket},
		{"access key", cfg.AccessKey},
		{"secret key", cfg.SecretKey},
	} {
		if field.value == "" {
			return nil, fmt.Errorf("storage %s is required", field.name)
		}
	}
	endpoint, err := resolveEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 client config: %w", err)
	}

	store := &S3DocumentStore{
		client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		}),
		bucket: cfg.Bucket,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// resolveEndpoint adds a scheme to a bare host:port, picking https when useSSL is set.
func resolveEndpoint(endpoint string, useSSL bool) (string, error) {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		scheme := "http://"
		if useSSL {
			scheme = "https://"
		}
		endpoint = scheme + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid storage endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid storage endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// EnsureBucket creates the document bucket unless it already exists.
func (s *S3DocumentStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	s.logger.Info("Creating document bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Stat returns the object's size and SHA-256. The digest comes from the
// object's sha256 metadata when present, otherwise from the S3 full-object
// checksum. A missing object yields document_not_found.
func (s *S3DocumentStore) Stat(ctx context.Context, storageKey string) (*receivable.StoredObject, error) {
	if storageKey == "" {
		return nil, errors.New("storage key is required")
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(storageKey),
		ChecksumMode: types.ChecksumModeEnabled,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, shared.NewNotFoundError("document_not_found", "document %s not found in storage", storageKey)
		}
		return nil, fmt.Errorf("head object %s: %w", storageKey, err)
	}

	obj := &receivable.StoredObject{
		Key:       storageKey,
		SizeBytes: aws.ToInt64(out.ContentLength),
		SHA256:    strings.ToLower(out.Metadata[checksumMetadataKey]),
	}
	if obj.SHA256 == "" {
		obj.SHA256 = checksumToHex(aws.ToString(out.ChecksumSHA256))
	}
	s.logger.Debug("Stat document object",
		zap.String("key", storageKey),
		zap.Int64("size", obj.SizeBytes),
		zap.Bool("has_checksum", obj.SHA256 != ""))
	return obj, nil
}

// Put uploads a document and records its SHA-256 as object metadata
func (s *S3DocumentStore) Put(ctx context.Context, storageKey string, data []byte, contentType string) (string, error) {
	if storageKey == "" {
		return "", errors.New("storage key is required")
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(storageKey),
		Body:              bytes.NewReader(data),
		ContentType:       aws.String(contentType),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata:          map[string]string{checksumMetadataKey: digest},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", storageKey, err)
	}
	return digest, nil
}

// Bucket returns the bucket name
func (s *S3DocumentStore) Bucket() string {
	return s.bucket
}

func isNotFound(err error) bool {
	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
	)
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	// some S3-compatible services only report the code in the message
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

// checksumToHex converts a base64 S3 SHA-256 checksum to lowercase hex.
// Composite multipart checksums ("<b64>-<parts>") are not object digests and yield "".
func checksumToHex(checksum string) string {
	if checksum == "" || strings.Contains(checksum, "-") {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(checksum)
	if err != nil || len(raw) != sha256.Size {
		return ""
	}
	return hex.EncodeToString(raw)
}
