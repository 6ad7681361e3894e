package naming

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
)

// FileExpander maps an entry to a single strategy whose only source is the
// entry itself.
type FileExpander struct{}

func (FileExpander) Expand(_ context.Context, coll *Collection, entry string) ([]*Strategy, error) {
	return []*Strategy{NewStrategy(coll, entry, []string{entry})}, nil
}

// DirExpander expands a local directory into one strategy per file whose name
// ends in one of Extensions (all files when empty). Files are visited in
// lexical order. A non-directory entry expands like FileExpander.
type DirExpander struct {
	Extensions []string
	Recursive  bool
}

func (e DirExpander) Expand(ctx context.Context, coll *Collection, entry string) ([]*Strategy, error) {
	var out []*Strategy
	err := filepath.WalkDir(entry, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != entry && !e.Recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !HasExtension(d.Name(), e.Extensions) {
			return nil
		}
		out = append(out, NewStrategy(coll, p, []string{p}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasExtension reports whether name ends in one of exts. An empty list
// matches everything.
func HasExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
