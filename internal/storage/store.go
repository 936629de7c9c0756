package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"wasteportal-backend/internal/config"
	"wasteportal-backend/internal/models"
)

var ErrNotFound = errors.New("object not found")

type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the object store holding submission photos.
type Store interface {
	Put(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	List(ctx context.Context, bucket string) ([]Object, error)
	Delete(ctx context.Context, bucket string, keys ...string) error
	// URL is the public address of an object, empty when the bucket is private.
	URL(bucket, key string) string
}

// New builds the store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "s3":
		return NewS3Store(ctx, S3Options{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			PublicURL:    cfg.StoragePublicURL,
		})
	case "local":
		return NewLocalStore(cfg.StorageLocalPath, cfg.StoragePublicURL)
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}

// BucketFor maps a submission kind to its configured bucket.
func BucketFor(cfg *config.Config, kind models.SubmissionKind) string {
	if kind == models.KindMessWaste {
		return cfg.MessBucket
	}
	return cfg.HostelBucket
}

func publicURL(base, bucket, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + key
}

// validKey rejects keys that could escape a bucket.
func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
