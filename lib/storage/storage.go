// Package storage keeps chat attachments in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/medleyhq/medley/lib/config"
	"github.com/medleyhq/medley/lib/metrics"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store saves an object and returns the URI it can be referenced by.
type Store interface {
	Put(ctx context.Context, prefix, filename, contentType string, data []byte) (string, error)
	Ping(ctx context.Context) error
}

type Minio struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewMinio(cfg config.StorageConfig, logger *slog.Logger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Minio{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
	}
	m.logger.Info("Created storage bucket", slog.String("bucket", m.bucket))
	return nil
}

func (m *Minio) Put(ctx context.Context, prefix, filename, contentType string, data []byte) (string, error) {
	key := ObjectKey(prefix, filename)

	start := time.Now()
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	metrics.ObserveExternal("minio", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	m.logger.Debug("Stored attachment", slog.String("key", key), slog.Int("size", len(data)))
	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}

func (m *Minio) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}

// ObjectKey namespaces an upload under prefix with a random component so
// repeated uploads of the same file never collide.
func ObjectKey(prefix, filename string) string {
	name := path.Base(path.Clean("/" + filename))
	if name == "/" || name == "." {
		name = "upload"
	}
	return path.Join(prefix, uuid.NewString(), name)
}
