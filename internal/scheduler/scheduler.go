// Package scheduler turns a remote listing into execution units, one per
// time window, and runs them with bounded concurrency.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/animus-labs/animus-ingest/internal/config"
	"github.com/animus-labs/animus-ingest/internal/domain"
	"github.com/animus-labs/animus-ingest/internal/execunit"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/reader"
	"github.com/animus-labs/animus-ingest/internal/transfer"
)

// Listing is the remote reader as the scheduler sees it.
type Listing interface {
	execunit.RemoteReader
	Listing() []reader.Entry
	Unset(keys ...string) error
}

// Ledger records unit outcomes. It is optional.
type Ledger interface {
	Insert(ctx context.Context, run domain.UnitRun) error
}

type Options struct {
	Config  config.Config
	Unit    execunit.Deps
	Listing Listing
	// Stage copies remote entries into a unit's workspace.
	Stage  transfer.Getter
	Ledger Ledger
	Logger *slog.Logger
	Now    func() time.Time
}

type Scheduler struct {
	cfg     config.Config
	unit    execunit.Deps
	listing Listing
	stage   transfer.Getter
	ledger  Ledger
	logger  *slog.Logger
	now     func() time.Time
}

// Summary counts unit outcomes of one pass.
type Summary struct {
	Units     int
	Succeeded int
	Failed    int
	Runs      []domain.UnitRun
}

func New(opts Options) (*Scheduler, error) {
	if opts.Listing == nil {
		return nil, errors.New("listing is required")
	}
	if opts.Stage == nil {
		return nil, errors.New("stage transfer is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	unit := opts.Unit
	unit.RemoteReader = opts.Listing
	if unit.Logger == nil {
		unit.Logger = logger
	}
	return &Scheduler{
		cfg:     opts.Config,
		unit:    unit,
		listing: opts.Listing,
		stage:   opts.Stage,
		ledger:  opts.Ledger,
		logger:  logger.With("component", "Scheduler"),
		now:     now,
	}, nil
}

// RunOnce runs a unit for every window of the current listing. Unit
// failures are counted, not returned; the error reports cancellation.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	windows := Windows(s.eligible(), s.cfg.Interval)
	s.logger.Info("scheduling", "windows", len(windows), "interval", s.cfg.Interval, "max_workers", s.cfg.MaxWorkers)

	var (
		mu      sync.Mutex
		summary = Summary{Units: len(windows)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxWorkers)
	for _, w := range windows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			run := s.runWindow(gctx, w)
			mu.Lock()
			defer mu.Unlock()
			summary.Runs = append(summary.Runs, run)
			if run.Status == domain.UnitRunSucceeded {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	s.logger.Info("pass complete", "units", summary.Units, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

// eligible returns the listing entries a unit's data source will count.
// Entries without one of the data source extensions are reported as skipped
// and released, so expected and found counts agree.
func (s *Scheduler) eligible() []reader.Entry {
	pending := s.listing.Pending()
	var (
		out     []reader.Entry
		skipped []string
	)
	for _, e := range s.listing.Listing() {
		if st, ok := pending[e.Key]; ok && naming.HasExtension(st.FileName(), s.cfg.DataSourceExtensions) {
			out = append(out, e)
			continue
		}
		skipped = append(skipped, e.Key)
		s.logger.Warn("skipping entry without a data source extension", "key", e.Key, "extensions", s.cfg.DataSourceExtensions)
		if s.unit.Reporter != nil {
			s.unit.Reporter.CaptureSkipped(e.Key, "no data source extension")
		}
	}
	if len(skipped) > 0 {
		if err := s.listing.Unset(skipped...); err != nil {
			s.logger.Error("release skipped keys", "error", err)
		}
	}
	return out
}

func (s *Scheduler) runWindow(ctx context.Context, w Window) domain.UnitRun {
	run := domain.UnitRun{
		ID:              uuid.NewString(),
		Collection:      s.cfg.Collection,
		Label:           execunit.Label(w.Start, w.End),
		WindowStart:     w.Start,
		WindowEnd:       w.End,
		EntryTime:       w.Latest(),
		ExpectedEntries: len(w.Entries),
		StartedAt:       s.now(),
	}
	result, err := s.execute(ctx, w)
	run.Result = result
	run.FinishedAt = s.now()
	switch {
	case err != nil:
		run.Status = domain.UnitRunErrored
		run.Error = err.Error()
	case result == 0:
		run.Status = domain.UnitRunSucceeded
	case result == execunit.ResultCountMismatch:
		run.Status = domain.UnitRunMismatch
	default:
		run.Status = domain.UnitRunFailed
	}

	logger := s.logger.With("label", run.Label)
	if err := s.listing.Unset(w.Keys()...); err != nil {
		logger.Error("release window keys", "error", err)
	}
	s.record(ctx, logger, &run)
	return run
}

func (s *Scheduler) execute(ctx context.Context, w Window) (result int, err error) {
	u, err := execunit.New(s.cfg, s.unit, w.Start, w.End)
	if err != nil {
		return 0, err
	}
	u.SetNumEntries(len(w.Entries))
	u.SetEntryTime(w.Latest())
	if err := u.Start(); err != nil {
		_ = u.Stop()
		return 0, err
	}
	defer func() {
		if stopErr := u.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("stop unit %s: %w", u.Label(), stopErr)
		}
	}()

	s.stageWindow(ctx, u, w)
	return u.Do(ctx)
}

// stageWindow copies the window's files into the unit workspace. A file that
// fails to stage is left out; the unit's count check reports the gap.
func (s *Scheduler) stageWindow(ctx context.Context, u *execunit.Unit, w Window) {
	pending := s.listing.Pending()
	logger := u.Logger()
	for _, e := range w.Entries {
		st, ok := pending[e.Key]
		if !ok {
			logger.Warn("entry no longer pending", "key", e.Key)
			continue
		}
		dest := filepath.Join(u.WorkingDirectory(), st.FileName())
		if err := s.stage.Get(ctx, e.Source, dest); err != nil {
			logger.Error("stage", "key", e.Key, "source", e.Source, "error", err)
			continue
		}
		logger.Debug("staged", "key", e.Key, "path", dest)
	}
}

func (s *Scheduler) record(ctx context.Context, logger *slog.Logger, run *domain.UnitRun) {
	sum, err := run.ComputeIntegritySHA256()
	if err != nil {
		logger.Error("unit run integrity", "error", err)
		return
	}
	run.IntegritySHA256 = sum
	logger.Info("unit finished", "status", run.Status, "result", run.Result, "entries", run.ExpectedEntries)
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Insert(context.WithoutCancel(ctx), *run); err != nil {
		logger.Error("record unit run", "error", err)
	}
}
