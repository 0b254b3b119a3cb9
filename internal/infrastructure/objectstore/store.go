package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/config"
)

// KeyPrefix is prepended to every media object key.
const KeyPrefix = "remoteeye-media/"

// Presign bounds. S3 rejects presigned URLs valid for longer than 7 days.
const (
	DefaultURLExpiry = time.Hour
	maxURLExpiry     = 7 * 24 * time.Hour
	defaultRegion    = "auto"
)

// Store presigns uploads and downloads against one bucket.
// A Store built from a disabled config is valid; every presign returns
// ErrNotConfigured.
type Store struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// New creates a Store from configuration.
//
// Parameters:
//   - cfg: storage section of config.yaml
//
// Returns:
//   - *Store: never nil; check IsConfigured
//   - error: if storage is enabled but the client cannot be built
func New(cfg config.StorageConfig) (*Store, error) {
	expiry := time.Duration(cfg.URLExpiry) * time.Second
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	s := &Store{bucket: cfg.Bucket, expiry: min(expiry, maxURLExpiry)}

	if !cfg.Enabled {
		return s, nil
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return s, fmt.Errorf("%w: endpoint, bucket, access_key and secret_key are required", ErrNotConfigured)
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	client, err := minio.New(endpointHost(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return s, fmt.Errorf("creating object storage client: %w", err)
	}
	s.client = client
	return s, nil
}

// IsConfigured reports whether presigning is available.
func (s *Store) IsConfigured() bool {
	return s != nil && s.client != nil
}

// URLExpiry is the default validity of presigned URLs.
func (s *Store) URLExpiry() time.Duration {
	if s == nil {
		return DefaultURLExpiry
	}
	return s.expiry
}

// ObjectKey returns the full bucket key for a media key.
func ObjectKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	clean := path.Clean(key)
	if clean != key || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if strings.HasPrefix(clean, KeyPrefix) {
		return clean, nil
	}
	return KeyPrefix + clean, nil
}

// PresignUpload returns a URL the device can PUT the object to.
// A zero ttl uses the configured expiry.
func (s *Store) PresignUpload(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	objectKey, err := s.prepare(key)
	if err != nil {
		return nil, err
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectKey, s.ttl(ttl))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}
	return u, nil
}

// PresignDownload returns a URL a controller can GET the object from.
// A zero ttl uses the configured expiry.
func (s *Store) PresignDownload(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	objectKey, err := s.prepare(key)
	if err != nil {
		return nil, err
	}
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectKey)))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.ttl(ttl), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresignFailed, err)
	}
	return u, nil
}

func (s *Store) prepare(key string) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	return ObjectKey(key)
}

func (s *Store) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.expiry
	}
	return max(min(ttl, maxURLExpiry), time.Second)
}

// endpointHost strips a scheme so both "https://acc.r2.cloudflarestorage.com"
// and "acc.r2.cloudflarestorage.com" are accepted.
func endpointHost(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimSuffix(endpoint, "/")
}
