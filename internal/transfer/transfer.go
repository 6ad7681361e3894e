// Package transfer moves files between data sources, the local workspace and
// the archive.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Getter copies the file named by source to the local path dest.
type Getter interface {
	Get(ctx context.Context, source, dest string) error
}

// Putter stores the local file fqn under the archive URI uri.
type Putter interface {
	Put(ctx context.Context, fqn, uri string) error
}

// Dispatch routes a source to the getter for its kind: http(s) URLs, other
// URI-style names (rclone remotes, archive URIs) and local paths.
type Dispatch struct {
	HTTP   Getter
	Remote Getter
	Local  Getter
}

func (d Dispatch) Get(ctx context.Context, source, dest string) error {
	var g Getter
	switch kindOf(source) {
	case kindHTTP:
		g = d.HTTP
	case kindRemote:
		g = d.Remote
	default:
		g = d.Local
	}
	if g == nil {
		return fmt.Errorf("no transfer for %s", source)
	}
	return g.Get(ctx, source, dest)
}

type kind int

const (
	kindLocal kind = iota
	kindHTTP
	kindRemote
)

func kindOf(source string) kind {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 || filepath.IsAbs(source) {
		return kindLocal
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return kindHTTP
	case "file":
		return kindLocal
	}
	return kindRemote
}

// writeFile streams r into dest through a temporary sibling, so readers never
// see a partial file under the final name.
func writeFile(dest string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".part-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
