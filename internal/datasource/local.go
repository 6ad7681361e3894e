// Package datasource lists the work items of a run.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/animus-labs/animus-ingest/internal/config"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/report"
)

// Local lists files under the configured local data sources whose names end
// in one of the data source extensions.
type Local struct {
	sources    []string
	extensions []string
	recursive  bool
	reporter   *report.Reporter
	logger     *slog.Logger

	once    sync.Once
	entries []string
	err     error
}

func NewLocal(cfg config.Config, reporter *report.Reporter, logger *slog.Logger) (*Local, error) {
	if len(cfg.DataSources) == 0 {
		return nil, errors.New("at least one data source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		sources:    slices.Clone(cfg.DataSources),
		extensions: slices.Clone(cfg.DataSourceExtensions),
		recursive:  cfg.RecurseDataSources,
		reporter:   reporter,
		logger:     logger.With("component", "LocalDataSource"),
	}, nil
}

// Entries walks the sources once and returns the matching files in sorted
// order. Later calls return the same list.
func (l *Local) Entries(ctx context.Context) ([]string, error) {
	l.once.Do(func() {
		l.entries, l.err = l.walk(ctx)
		if l.err == nil && l.reporter != nil {
			l.reporter.CaptureTodo(len(l.entries))
		}
	})
	return slices.Clone(l.entries), l.err
}

// NumEntries is the number of files Entries found. A failed listing counts
// as zero.
func (l *Local) NumEntries() int {
	entries, err := l.Entries(context.Background())
	if err != nil {
		return 0
	}
	return len(entries)
}

func (l *Local) walk(ctx context.Context) ([]string, error) {
	var out []string
	for _, src := range l.sources {
		err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				if p != src && !l.recursive {
					return fs.SkipDir
				}
				return nil
			}
			if naming.HasExtension(d.Name(), l.extensions) {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", src, err)
		}
	}
	slices.Sort(out)
	l.logger.Debug("listed local files", "sources", l.sources, "count", len(out))
	return out, nil
}
