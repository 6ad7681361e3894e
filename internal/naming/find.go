package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("not found")

// Finder resolves a file name to a path beneath root.
type Finder interface {
	Find(root, fileName string) (string, error)
}

// WalkFinder looks at root/fileName first, then walks the tree under root in
// lexical order and returns the first regular file with that name.
type WalkFinder struct{}

func (WalkFinder) Find(root, fileName string) (string, error) {
	direct := filepath.Join(root, fileName)
	if info, err := os.Stat(direct); err == nil && info.Mode().IsRegular() {
		return direct, nil
	}

	var found string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == fileName {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("search %s: %w", root, err)
	}
	if found == "" {
		return "", fmt.Errorf("%s under %s: %w", fileName, root, ErrNotFound)
	}
	return found, nil
}
