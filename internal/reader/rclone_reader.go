package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/animus-labs/animus-ingest/internal/fits"
	"github.com/animus-labs/animus-ingest/internal/naming"
)

// Entry is one tracked remote file, in listing order.
type Entry struct {
	Key     string
	Source  string
	ModTime time.Time
	Size    int64
}

// lsjsonItem is one element of `rclone lsjson` output.
type lsjsonItem struct {
	Path     string    `json:"Path"`
	Name     string    `json:"Name"`
	Size     int64     `json:"Size"`
	MimeType string    `json:"MimeType"`
	ModTime  time.Time `json:"ModTime"`
	IsDir    bool      `json:"IsDir"`
}

// RcloneReader tracks files listed on an rclone remote. Its pending set is
// the naming context it was built with; entries leave it through Unset once a
// unit has finished with them.
type RcloneReader struct {
	names  *naming.Context
	remote string
	logger *slog.Logger

	mu       sync.RWMutex
	entries  map[string]Entry
	headers  map[string][]fits.Header
	fileInfo map[string]*naming.FileInfo
}

// NewRcloneReader tracks files of remote (for example "vos:OMM/data") in names.
func NewRcloneReader(names *naming.Context, remote string, logger *slog.Logger) (*RcloneReader, error) {
	if names == nil {
		return nil, errors.New("naming context is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RcloneReader{
		names:    names,
		remote:   strings.TrimRight(remote, "/"),
		logger:   logger.With("component", "RcloneReader"),
		entries:  map[string]Entry{},
		headers:  map[string][]fits.Header{},
		fileInfo: map[string]*naming.FileInfo{},
	}, nil
}

// Seed adds every file of an `rclone lsjson` document to the pending set.
// Directories and names outside the collection pattern are skipped. File info
// comes from the listing; metadata stays unset until headers are pushed.
func (r *RcloneReader) Seed(ctx context.Context, raw []byte) (int, error) {
	var items []lsjsonItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("decode lsjson: %w", err)
	}
	added := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if item.IsDir {
			continue
		}
		rel := item.Path
		if rel == "" {
			rel = item.Name
		}
		source := r.source(rel)
		keys, err := r.names.Expand(ctx, source)
		if err != nil {
			return added, err
		}
		for _, key := range keys {
			s, ok := r.names.Get(key)
			if !ok {
				continue
			}
			fileType := naming.ContentType(s.FileName())
			if fileType == naming.DefaultContentType && item.MimeType != "" {
				fileType = item.MimeType
			}
			info := &naming.FileInfo{
				ID:           s.FileURI(),
				Size:         item.Size,
				FileType:     fileType,
				LastModified: item.ModTime.UTC(),
			}
			s.SetFileInfo(info)

			r.mu.Lock()
			r.entries[key] = Entry{Key: key, Source: source, ModTime: info.LastModified, Size: item.Size}
			r.fileInfo[key] = info
			r.mu.Unlock()
			added++
		}
	}
	r.logger.Info("seeded from listing", "remote", r.remote, "items", len(items), "tracked", added)
	return added, nil
}

func (r *RcloneReader) source(rel string) string {
	if r.remote == "" {
		return rel
	}
	if strings.HasSuffix(r.remote, ":") {
		return r.remote + rel
	}
	return path.Join(r.remote, rel)
}

// Pending returns a snapshot of the tracked strategies by key.
func (r *RcloneReader) Pending() map[string]*naming.Strategy {
	return r.names.Snapshot()
}

// SetHeaders attaches the headers of the staged copy at fqn to s, so the
// remote file is not read again.
func (r *RcloneReader) SetHeaders(ctx context.Context, s *naming.Strategy, fqn string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.names.Get(s.Key()); !ok {
		return fmt.Errorf("set headers %s: %w", s.Key(), naming.ErrNotTracked)
	}
	headers, err := fits.ReadFile(fqn)
	if err != nil {
		return fmt.Errorf("set headers %s: %w", s.Key(), err)
	}
	s.SetMetadata(headers)
	r.mu.Lock()
	r.headers[s.Key()] = headers
	r.mu.Unlock()
	r.logger.Debug("headers from staged file", "key", s.Key(), "path", fqn, "hdus", len(headers))
	return nil
}

// Set fills in metadata for s. Cached headers are used when present; a
// staged local source is read otherwise.
func (r *RcloneReader) Set(ctx context.Context, s *naming.Strategy) error {
	r.mu.RLock()
	headers, hasHeaders := r.headers[s.Key()]
	info, hasInfo := r.fileInfo[s.Key()]
	r.mu.RUnlock()

	if hasInfo && s.FileInfo() == nil {
		s.SetFileInfo(info)
	}
	if hasHeaders {
		s.SetMetadata(headers)
		return nil
	}
	fqn, err := localSource(s)
	if err != nil {
		return err
	}
	return r.SetHeaders(ctx, s, fqn)
}

// Unset stops tracking keys. It fails without removing anything when a key
// is not tracked.
func (r *RcloneReader) Unset(keys ...string) error {
	if err := r.names.Unset(keys...); err != nil {
		return err
	}
	r.mu.Lock()
	for _, key := range keys {
		delete(r.entries, key)
		delete(r.headers, key)
		delete(r.fileInfo, key)
	}
	r.mu.Unlock()
	return nil
}

// Listing returns the tracked entries ordered by modification time, then key.
func (r *RcloneReader) Listing() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.Before(out[j].ModTime)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (r *RcloneReader) Headers() map[string][]fits.Header {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMap(r.headers)
}

func (r *RcloneReader) FileInfo() map[string]*naming.FileInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMap(r.fileInfo)
}

// Evict drops the cached headers for key. The pending entry stays until Unset.
func (r *RcloneReader) Evict(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.headers, key)
}

// Reset drops cached headers. Pending entries and listing file info stay.
func (r *RcloneReader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = map[string][]fits.Header{}
}
