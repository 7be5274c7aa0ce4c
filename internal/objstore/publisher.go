// Package objstore publishes output files to S3-compatible object storage.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the storage target.
type Config struct {
	Endpoint  string // host:port or URL; an https URL implies UseSSL
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string // prepended to object keys
}

// Publisher uploads files to one bucket.
type Publisher struct {
	client *minio.Client
	cfg    Config
}

// NewPublisher creates a publisher. It does not contact the server.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("publish output: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("publish output: bucket is required")
	}

	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("publish output: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("publish output: create client: %w", err)
	}

	return &Publisher{client: client, cfg: cfg}, nil
}

// parseEndpoint accepts either host:port or a URL and returns the host and
// whether TLS should be used.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid endpoint URL %q", raw)
	}
	return u.Host, useSSL || u.Scheme == "https", nil
}

// ObjectKey returns the key a file is published under.
func ObjectKey(prefix, filePath string) string {
	base := filepath.Base(filePath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base
	}
	return path.Join(prefix, base)
}

// Publish uploads filePath and returns its object key. The bucket is created
// when it does not exist. An existing object with the same key is replaced.
func (p *Publisher) Publish(ctx context.Context, filePath, contentType string) (string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := ObjectKey(p.cfg.Prefix, filePath)
	info, err := p.client.FPutObject(ctx, p.cfg.Bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("publish output %s: %w", key, err)
	}

	slog.Info("output published",
		"bucket", p.cfg.Bucket,
		"key", key,
		"size", info.Size,
	)
	return key, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("publish output: check bucket %s: %w", p.cfg.Bucket, err)
	}
	if exists {
		return nil
	}

	err = p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region})
	if err != nil {
		return fmt.Errorf("publish output: create bucket %s: %w", p.cfg.Bucket, err)
	}
	slog.Info("bucket created", "bucket", p.cfg.Bucket)
	return nil
}
