package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/animus-labs/animus-ingest/internal/fits"
	"github.com/animus-labs/animus-ingest/internal/naming"
)

// FileReader reads metadata from the first source name of a strategy that
// exists on local disk.
type FileReader struct {
	logger *slog.Logger

	mu       sync.Mutex
	headers  map[string][]fits.Header
	fileInfo map[string]*naming.FileInfo
}

func NewFileReader(logger *slog.Logger) *FileReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileReader{
		logger:   logger.With("component", "FileReader"),
		headers:  map[string][]fits.Header{},
		fileInfo: map[string]*naming.FileInfo{},
	}
}

func (r *FileReader) Set(ctx context.Context, s *naming.Strategy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := localSource(s)
	if err != nil {
		return err
	}
	info, err := LocalFileInfo(path)
	if err != nil {
		return err
	}
	headers, err := localHeaders(path)
	if err != nil {
		return err
	}

	s.SetFileInfo(info)
	if headers != nil {
		s.SetMetadata(headers)
	}

	r.mu.Lock()
	r.fileInfo[s.Key()] = info
	if headers != nil {
		r.headers[s.Key()] = headers
	}
	r.mu.Unlock()
	r.logger.Debug("read local metadata", "key", s.Key(), "path", path, "size", info.Size, "hdus", len(headers))
	return nil
}

// Headers returns a copy of the headers read so far, keyed by strategy key.
func (r *FileReader) Headers() map[string][]fits.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyMap(r.headers)
}

func (r *FileReader) FileInfos() map[string]*naming.FileInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyMap(r.fileInfo)
}

func (r *FileReader) Evict(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.headers, key)
	delete(r.fileInfo, key)
}

func (r *FileReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = map[string][]fits.Header{}
	r.fileInfo = map[string]*naming.FileInfo{}
}

func localSource(s *naming.Strategy) (string, error) {
	for _, src := range s.SourceNames() {
		st, err := os.Stat(src)
		if err == nil && st.Mode().IsRegular() {
			return src, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no local source for %s: %w", s.FileName(), naming.ErrNotFound)
}
