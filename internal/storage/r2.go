package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/qbui/audio-processor/internal/domain"
)

// R2Config holds connection settings for the S3-compatible object store.
type R2Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// R2Store is an S3-compatible blob store client for Cloudflare R2.
type R2Store struct {
	client *minio.Client
	bucket string
}

// NewR2Store validates the configuration and builds the client.
func NewR2Store(cfg R2Config) (*R2Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("r2: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("r2: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("r2: failed to create client: %w", err)
	}

	return &R2Store{client: client, bucket: cfg.Bucket}, nil
}

// Fetch retrieves an object's bytes by key.
func (s *R2Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, domain.NewFetchError("", fmt.Sprintf("failed to fetch object %q", key), err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, domain.NewFetchError("", fmt.Sprintf("failed to read object %q", key), err)
	}
	return data, nil
}

// Put stores an object under key.
func (s *R2Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return domain.NewStorageError("", fmt.Sprintf("failed to put object %q", key), err)
	}
	return nil
}
