package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/animus-labs/animus-ingest/internal/clients"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/reader"
	"github.com/animus-labs/animus-ingest/internal/storage/objectstore"
)

// Archive stores files in, and fetches them from, the object store of a
// clients bundle. An archive URI "scheme:COLL/file" maps to object key
// "COLL/file"; previews go to the preview bucket.
type Archive struct {
	clients *clients.Bundle
	logger  *slog.Logger
}

func NewArchive(bundle *clients.Bundle, logger *slog.Logger) (*Archive, error) {
	if bundle == nil || bundle.Store == nil {
		return nil, errors.New("clients bundle with a store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{clients: bundle, logger: logger.With("component", "ArchiveTransfer")}, nil
}

// ObjectKey maps an archive URI to its bucket key.
func ObjectKey(uri string) (string, error) {
	_, rest, ok := strings.Cut(uri, ":")
	rest = strings.TrimLeft(rest, "/")
	if !ok || rest == "" || !strings.Contains(rest, "/") {
		return "", fmt.Errorf("not an archive uri: %q", uri)
	}
	return rest, nil
}

func (a *Archive) bucketFor(key string) string {
	if naming.IsPreview(key) {
		return a.clients.PreviewBucket
	}
	return a.clients.Bucket
}

// Put uploads fqn unless an object with the same size and checksum is
// already stored under uri.
func (a *Archive) Put(ctx context.Context, fqn, uri string) error {
	key, err := ObjectKey(uri)
	if err != nil {
		return err
	}
	bucket := a.bucketFor(key)
	info, err := reader.LocalFileInfo(fqn)
	if err != nil {
		return err
	}

	existing, err := a.clients.Store.Stat(ctx, bucket, key)
	switch {
	case err == nil:
		if existing.Size == info.Size && (existing.MD5 == info.MD5 || existing.ETag == info.MD5) {
			a.logger.Info("already archived", "uri", uri, "md5", info.MD5)
			return nil
		}
	case errors.Is(err, objectstore.ErrNotFound):
	default:
		return fmt.Errorf("stat %s: %w", uri, err)
	}

	f, err := os.Open(fqn)
	if err != nil {
		return err
	}
	defer f.Close()
	opts := objectstore.PutOptions{ContentType: info.FileType, MD5: info.MD5}
	if err := a.clients.Store.Put(ctx, bucket, key, f, info.Size, opts); err != nil {
		return fmt.Errorf("put %s: %w", uri, err)
	}
	a.logger.Info("archived", "uri", uri, "bucket", bucket, "key", key, "bytes", info.Size)
	return nil
}

// Get downloads the object behind an archive URI to dest.
func (a *Archive) Get(ctx context.Context, source, dest string) error {
	key, err := ObjectKey(source)
	if err != nil {
		return err
	}
	body, _, err := a.clients.Store.Get(ctx, a.bucketFor(key), key)
	if err != nil {
		return fmt.Errorf("get %s: %w", source, err)
	}
	defer body.Close()
	if _, err := writeFile(dest, body); err != nil {
		return fmt.Errorf("get %s: %w", source, err)
	}
	return nil
}
