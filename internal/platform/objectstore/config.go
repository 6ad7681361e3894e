package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-ingest/internal/platform/env"
)

// Config describes the S3-compatible archive. Science files and previews may
// live in separate buckets; when BucketPreviews is empty previews share
// BucketArchive.
type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	BucketArchive  string
	BucketPreviews string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("INGEST_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:       env.String("INGEST_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:      env.String("INGEST_MINIO_ACCESS_KEY", "ingest"),
		SecretKey:      env.String("INGEST_MINIO_SECRET_KEY", "ingestminio"),
		Region:         env.String("INGEST_MINIO_REGION", "us-east-1"),
		UseSSL:         useSSL,
		BucketArchive:  env.String("INGEST_MINIO_BUCKET_ARCHIVE", "archive"),
		BucketPreviews: env.String("INGEST_MINIO_BUCKET_PREVIEWS", ""),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketArchive) == "" {
		return errors.New("archive bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// PreviewBucket returns the bucket previews and thumbnails are written to.
func (c Config) PreviewBucket() string {
	if b := strings.TrimSpace(c.BucketPreviews); b != "" {
		return b
	}
	return c.BucketArchive
}

func (c Config) buckets() []string {
	out := []string{c.BucketArchive}
	if p := c.PreviewBucket(); p != c.BucketArchive {
		out = append(out, p)
	}
	return out
}
