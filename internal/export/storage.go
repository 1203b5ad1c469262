package export

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/carelink/referral-core/pkg/config"
	"github.com/carelink/referral-core/pkg/logger"
	"github.com/carelink/referral-core/pkg/types"
)

// ObjectStore is the object-storage collaborator: write a blob under a key
// and mint time-limited signed download URLs for it. Actual object deletion
// at expiry is the store's lifecycle policy, not this interface.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) (location string, err error)
	SignDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// S3Store is the production ObjectStore backed by S3-compatible storage.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *logger.Logger
}

// NewS3Store creates an S3-backed object store from configuration
func NewS3Store(ctx context.Context, cfg *config.StorageConfig, log *logger.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  awsCfg.Credentials,
		HTTPClient:   awsCfg.HTTPClient,
		BaseEndpoint: endpointOrNil(cfg.Endpoint),
		UsePathStyle: cfg.UsePathStyle,
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  log,
	}, nil
}

func endpointOrNil(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}

// Put uploads the blob and returns its stable storage location.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, metadata map[string]string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: metadata,
	})
	if err != nil {
		return "", types.NewExternalError(types.ErrCodeStorageFailure,
			fmt.Sprintf("failed to upload object %s", key), err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	s.logger.WithFields(map[string]interface{}{
		"bucket": s.bucket,
		"key":    key,
		"bytes":  len(body),
	}).Info("Uploaded package object")

	return location, nil
}

// SignDownloadURL mints a presigned GET URL valid for ttl.
func (s *S3Store) SignDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", types.NewExternalError(types.ErrCodeStorageFailure,
			fmt.Sprintf("failed to presign download URL for %s", key), err)
	}

	return req.URL, nil
}

// MemoryStore is an in-memory ObjectStore for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory object store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores the blob in memory.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(body))
	copy(stored, body)
	m.objects[key] = stored

	return "memory://" + key, nil
}

// SignDownloadURL returns a fake signed URL for the stored object.
func (m *MemoryStore) SignDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.objects[key]; !ok {
		return "", types.NewNotFoundError(types.ErrCodeNotFound,
			fmt.Sprintf("object not found: %s", key))
	}

	expiry := time.Now().UTC().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s?expires=%d", key, expiry), nil
}

// Get returns the stored bytes, for test assertions.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.objects[key]
	return body, ok
}
