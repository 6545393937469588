package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const modelContentType = "application/zip"

// MinioConfig holds S3 compatible storage settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// Validate checks the required settings.
func (c MinioConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return errors.New("minio endpoint is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return errors.New("minio credentials are required")
	case strings.TrimSpace(c.Bucket) == "":
		return errors.New("minio bucket is required")
	}

	return nil
}

// MinioStore keeps artifacts in a bucket, under an optional key prefix.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

// NewMinioStore builds a client from cfg.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}, nil
}

// EnsureBucket creates the bucket when missing.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("minio store not initialized")
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}

	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}

	return nil
}

// Put implements automl.ArtifactStore.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if s == nil || s.client == nil {
		return errors.New("minio store not initialized")
	}

	name, err := s.objectKey(key)
	if err != nil {
		return err
	}

	opts := minio.PutObjectOptions{ContentType: modelContentType}
	if _, err := s.client.PutObject(ctx, s.bucket, name, r, size, opts); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}

	return nil
}

func (s *MinioStore) objectKey(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	if s.prefix == "" {
		return clean[1:], nil
	}

	return s.prefix + clean, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
