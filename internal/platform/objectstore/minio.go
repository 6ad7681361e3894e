package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// EnsureBuckets creates the archive (and preview) buckets when missing.
func EnsureBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	return eachBucket(ctx, client, cfg, func(bucket string) error {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", bucket, err)
		}
		return nil
	})
}

// CheckBuckets is the readiness probe: every configured bucket must exist.
func CheckBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	return eachBucket(ctx, client, cfg, func(bucket string) error {
		return fmt.Errorf("bucket missing: %s", bucket)
	})
}

// eachBucket calls missing for every configured bucket that does not exist.
func eachBucket(ctx context.Context, client *minio.Client, cfg Config, missing func(bucket string) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if client == nil {
		return errors.New("minio client is required")
	}
	for _, bucket := range cfg.buckets() {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("bucket %s exists: %w", bucket, err)
		}
		if !exists {
			if err := missing(bucket); err != nil {
				return err
			}
		}
	}
	return nil
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
