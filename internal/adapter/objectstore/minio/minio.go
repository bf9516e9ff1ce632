// Package minio implements domain.ObjectStore on an S3-compatible object
// store using the artifact key layout defined in the domain package.
package minio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	mc "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hrdataworks/talentdb/internal/config"
	"github.com/hrdataworks/talentdb/internal/domain"
)

// metaCorrelationID is the user-metadata key binding an object to its
// intake record.
const metaCorrelationID = "Correlation-Id"

// Store implements domain.ObjectStore.
type Store struct {
	client *mc.Client
	bucket string
}

// New connects to the object store endpoint.
func New(cfg config.Config) (*Store, error) {
	client, err := mc.New(cfg.S3Endpoint, &mc.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("op=minio.New: %w", err)
	}
	return &Store{client: client, bucket: cfg.S3Bucket}, nil
}

// EnsureBucket creates the artifact bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx domain.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("op=minio.EnsureBucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, mc.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("op=minio.EnsureBucket: %w", err)
	}
	return nil
}

// Get reads one artifact fully into memory. CVs and their derived
// artifacts are bounded by the upload size limit, so streaming is not
// worth the interface complexity here.
func (s *Store) Get(ctx domain.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, mc.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=minio.Get: %w", mapErr(err, key))
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("op=minio.Get: %w", mapErr(err, key))
	}
	return data, nil
}

// Put writes one artifact. The correlation id is recorded as user metadata
// when the key follows the artifact layout.
func (s *Store) Put(ctx domain.Context, key string, data []byte, contentType string) error {
	opts := mc.PutObjectOptions{ContentType: contentType}
	if id := domain.CorrelationIDFromKey(key); id != "" {
		opts.UserMetadata = map[string]string{metaCorrelationID: id}
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("op=minio.Put: %w", err)
	}
	return nil
}

// Stat returns the object size and user metadata.
func (s *Store) Stat(ctx domain.Context, key string) (int64, map[string]string, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, mc.StatObjectOptions{})
	if err != nil {
		return 0, nil, fmt.Errorf("op=minio.Stat: %w", mapErr(err, key))
	}
	return info.Size, info.UserMetadata, nil
}

func mapErr(err error, key string) error {
	resp := mc.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", domain.ErrUpstreamTimeout, key)
	}
	return err
}
