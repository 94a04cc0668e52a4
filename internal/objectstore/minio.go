package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultBucket and DefaultRegion are used when not configured.
const (
	DefaultBucket = "talky-media"
	DefaultRegion = "us-east-1"
)

// Opts holds configuration options for the MinIO store.
type Opts struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool
}

// Option defines a configuration option for the MinIO store.
type Option func(*Opts)

// WithEndpoint sets the S3 endpoint (host:port, no scheme).
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) { o.Endpoint = endpoint }
}

// WithCredentials sets the static access key pair.
func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(o *Opts) {
		o.AccessKeyID = accessKeyID
		o.SecretAccessKey = secretAccessKey
	}
}

// WithBucket sets the bucket name.
func WithBucket(bucket string) Option {
	return func(o *Opts) { o.Bucket = bucket }
}

// WithRegion sets the region used when creating the bucket.
func WithRegion(region string) Option {
	return func(o *Opts) { o.Region = region }
}

// WithSSL toggles TLS towards the endpoint.
func WithSSL(useSSL bool) Option {
	return func(o *Opts) { o.UseSSL = useSSL }
}

// MinioStore is a Store backed by an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
	now    func() time.Time
}

// NewMinioStore creates a client for the configured endpoint. It does not contact the server; call EnsureBucket.
func NewMinioStore(opts ...Option) (*MinioStore, error) {
	cfg := Opts{Bucket: DefaultBucket, Region: DefaultRegion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint not set")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	slog.Debug("MinioStore created", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "ssl", cfg.UseSSL)
	return &MinioStore{client: client, bucket: cfg.Bucket, region: cfg.Region, now: time.Now}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	slog.Info("MinioStore EnsureBucket created bucket", "bucket", s.bucket)
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, ownerID string, kind Kind, r io.Reader, size int64) (string, error) {
	key := ObjectKey(ownerID, kind, s.now())
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: kind.ContentType()})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	slog.Debug("MinioStore Upload succeeded", "key", key, "size", info.Size)
	return key, nil
}

func (s *MinioStore) SignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, SignedURLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *MinioStore) ListRecent(ctx context.Context, ownerID string, kind Kind, limit int) ([]string, error) {
	prefix := Prefix(ownerID, kind)
	objs, err := collectObjects(ctx, func(ctx context.Context) <-chan minio.ObjectInfo {
		return s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return newestKeys(objs, limit), nil
}

// collectObjects drains a listing. Returning early cancels the listing so its
// producer goroutine exits.
func collectObjects(ctx context.Context, list func(context.Context) <-chan minio.ObjectInfo) ([]objectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var objs []objectInfo
	for obj := range list(ctx) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objs = append(objs, objectInfo{key: obj.Key, modified: obj.LastModified})
	}
	return objs, nil
}
