package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
)

// Local copies files on the local filesystem.
type Local struct {
	Logger *slog.Logger
}

func (l Local) Get(ctx context.Context, source, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := localPath(source)
	srcAbs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	destAbs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if srcAbs == destAbs {
		return nil
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	n, err := writeFile(dest, f)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dest, err)
	}
	if l.Logger != nil {
		l.Logger.Debug("copied local file", "source", src, "dest", dest, "bytes", n)
	}
	return nil
}

func localPath(source string) string {
	if u, err := url.Parse(source); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return source
}
