// Package reader fills in file info and metadata for naming strategies.
//
// FileReader reads files already on local disk. RcloneReader is seeded from a
// remote listing and owns the pending strategies a scheduler works through;
// execution units push headers of files they have staged into it so the
// remote side is not read twice.
package reader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/animus-labs/animus-ingest/internal/fits"
	"github.com/animus-labs/animus-ingest/internal/naming"
)

// Reader is the minimal read contract shared by all readers. Evict drops
// whatever was cached for one key; Reset drops everything.
type Reader interface {
	Set(ctx context.Context, s *naming.Strategy) error
	Evict(key string)
	Reset()
}

// LocalFileInfo describes the file at path: size, MD5 checksum, content type
// and modification time.
func LocalFileInfo(path string) (*naming.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("checksum %s: %w", path, err)
	}
	return &naming.FileInfo{
		ID:           st.Name(),
		Size:         st.Size(),
		MD5:          hex.EncodeToString(h.Sum(nil)),
		FileType:     naming.ContentType(st.Name()),
		LastModified: st.ModTime().UTC(),
	}, nil
}

// localHeaders reads FITS headers of path, or returns nil for files outside
// the FITS family.
func localHeaders(path string) ([]fits.Header, error) {
	if !naming.IsFITS(path) {
		return nil, nil
	}
	headers, err := fits.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read headers %s: %w", path, err)
	}
	return headers, nil
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
