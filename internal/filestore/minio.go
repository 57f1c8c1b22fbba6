// Package filestore verifies that file responses reference stored objects.
// Object bytes are never read or written here.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound reports a missing object key.
var ErrObjectNotFound = errors.New("filestore: object not found")

// Config locates the bucket holding uploaded request files.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectInfo is the subset of object metadata the workflow checks.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

type statFunc func(ctx context.Context, bucket, key string) (minio.ObjectInfo, error)

type presignFunc func(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error)

// Store checks object existence in a MinIO/S3 bucket and hands out
// presigned GET URLs for released files.
type Store struct {
	bucket  string
	stat    statFunc
	presign presignFunc
}

// New creates a MinIO client for the configured endpoint.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("filestore: endpoint and bucket are required")
	}
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = useSSL || u.Scheme == "https"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("filestore: create client: %w", err)
	}
	return &Store{
		bucket: cfg.Bucket,
		stat: func(ctx context.Context, bucket, key string) (minio.ObjectInfo, error) {
			return client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
		},
		presign: func(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error) {
			return client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
		},
	}, nil
}

// Stat returns metadata for the key or ErrObjectNotFound.
func (s *Store) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.stat(ctx, s.bucket, key)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("filestore: stat %s: %w", key, err)
	}
	return &ObjectInfo{Key: info.Key, Size: info.Size, ContentType: info.ContentType, ETag: info.ETag}, nil
}

// PresignGet returns a time-limited URL for downloading key directly from the bucket.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.presign == nil {
		return "", fmt.Errorf("filestore: presigning is not configured")
	}
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	u, err := s.presign(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("filestore: presign %s: %w", key, err)
	}
	return u.String(), nil
}
