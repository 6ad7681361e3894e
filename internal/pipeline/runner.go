package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/animus-labs/animus-ingest/internal/clients"
	"github.com/animus-labs/animus-ingest/internal/config"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/reader"
	"github.com/animus-labs/animus-ingest/internal/report"
	"github.com/animus-labs/animus-ingest/internal/transfer"
)

const (
	Success = 0
	Failed  = 1
)

// Source lists the entries of a run.
type Source interface {
	Entries(ctx context.Context) ([]string, error)
}

type Deps struct {
	Config       config.Config
	Collection   *naming.Collection
	MetaVisitors []Visitor
	DataVisitors []Visitor
	Chooser      Chooser
	// Stage fetches entries that are not local files into the working
	// directory. Upload stores files for the store task.
	Stage      transfer.Getter
	Upload     transfer.Putter
	Reader     reader.Reader
	Clients    *clients.Bundle
	Reporter   *report.Reporter
	DataSource Source
	Logger     *slog.Logger
}

type Runner struct {
	deps   Deps
	logger *slog.Logger

	mu     sync.Mutex
	failed []string
}

func New(deps Deps) (*Runner, error) {
	switch {
	case deps.Collection == nil:
		return nil, errors.New("collection is required")
	case deps.Reader == nil:
		return nil, errors.New("metadata reader is required")
	case deps.Reporter == nil:
		return nil, errors.New("reporter is required")
	case deps.DataSource == nil:
		return nil, errors.New("data source is required")
	case deps.Config.TaskTypes.Has(config.TaskStore) && deps.Upload == nil:
		return nil, errors.New("upload transfer is required for the store task")
	case !deps.Config.UseLocalFiles && deps.Stage == nil:
		return nil, errors.New("stage transfer is required for remote entries")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{deps: deps, logger: logger.With("component", "Runner")}, nil
}

// Run processes every entry of the data source once.
func (r *Runner) Run(ctx context.Context) int {
	entries, err := r.deps.DataSource.Entries(ctx)
	if err != nil {
		r.logger.Error("list entries", "error", err)
		return Failed
	}
	r.logger.Info("run", "entries", len(entries), "tasks", r.deps.Config.TaskTypes)
	return r.process(ctx, entries, false)
}

// RunRetry processes once more the entries that failed in Run.
func (r *Runner) RunRetry(ctx context.Context) int {
	r.mu.Lock()
	entries := slices.Clone(r.failed)
	r.failed = nil
	r.mu.Unlock()
	if len(entries) == 0 {
		return Success
	}
	r.logger.Info("retry", "entries", len(entries))
	return r.process(ctx, entries, true)
}

func (r *Runner) process(ctx context.Context, entries []string, retry bool) int {
	result := Success
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("interrupted", "remaining", len(entries)-i, "error", err)
			r.markFailed(entries[i:]...)
			return Failed
		}
		s := naming.NewStrategy(r.deps.Collection, entry, []string{entry})
		if retry {
			r.deps.Reporter.CaptureRetry(s.Key())
		}
		if err := r.processOne(ctx, s); err != nil {
			if errors.Is(err, errSkipped) {
				continue
			}
			r.deps.Reporter.CaptureFailure(s.Key(), err)
			r.markFailed(entry)
			result = Failed
			continue
		}
		r.deps.Reporter.CaptureSuccess(s.Key())
	}
	return result
}

func (r *Runner) markFailed(entries ...string) {
	r.mu.Lock()
	r.failed = append(r.failed, entries...)
	r.mu.Unlock()
}

var errSkipped = errors.New("skipped")

func (r *Runner) processOne(ctx context.Context, s *naming.Strategy) error {
	cfg := r.deps.Config
	if !s.IsValid() {
		r.deps.Reporter.CaptureSkipped(s.Key(), "name does not match collection pattern")
		return errSkipped
	}
	if r.deps.Chooser != nil {
		if ok, reason := r.deps.Chooser.Choose(ctx, s); !ok {
			r.deps.Reporter.CaptureSkipped(s.Key(), reason)
			return errSkipped
		}
	}

	local, err := r.localFiles(ctx, s)
	if err != nil {
		return err
	}
	staged := naming.NewStrategy(r.deps.Collection, local[0], local)
	if err := r.deps.Reader.Set(ctx, staged); err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	defer r.deps.Reader.Evict(staged.Key())
	r.logger.Debug("processing", "key", s.Key(), "strategy", staged.String())

	if cfg.TaskTypes.HasAny(config.TaskIngest, config.TaskVisit, config.TaskScrape) {
		if err := visit(ctx, r.deps.MetaVisitors, staged); err != nil {
			return fmt.Errorf("metadata visitors: %w", err)
		}
	}
	if cfg.TaskTypes.HasAny(config.TaskModify, config.TaskVisit) {
		if err := visit(ctx, r.deps.DataVisitors, staged); err != nil {
			return fmt.Errorf("data visitors: %w", err)
		}
	}
	if cfg.TaskTypes.Has(config.TaskStore) {
		uris := staged.DestinationURIs()
		for i, fqn := range local {
			if err := r.deps.Upload.Put(ctx, fqn, uris[i]); err != nil {
				return fmt.Errorf("store: %w", err)
			}
		}
		if cfg.CleanupFilesWhenStoring {
			for _, fqn := range local {
				if err := os.Remove(fqn); err != nil && !errors.Is(err, os.ErrNotExist) {
					r.logger.Warn("remove stored file", "path", fqn, "error", err)
				}
			}
		}
	}
	return nil
}

// localFiles returns local paths for the sources of s, staging the ones that
// are not already on disk.
func (r *Runner) localFiles(ctx context.Context, s *naming.Strategy) ([]string, error) {
	sources := s.SourceNames()
	if r.deps.Config.UseLocalFiles {
		return sources, nil
	}
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		dest := filepath.Join(r.deps.Config.WorkingDirectory, naming.BaseName(src))
		if err := r.deps.Stage.Get(ctx, src, dest); err != nil {
			return nil, fmt.Errorf("stage %s: %w", src, err)
		}
		out = append(out, dest)
	}
	return out, nil
}

func visit(ctx context.Context, visitors []Visitor, s *naming.Strategy) error {
	for _, v := range visitors {
		if err := v.Visit(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
