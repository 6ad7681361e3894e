package execunit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/animus-labs/animus-ingest/internal/clients"
	"github.com/animus-labs/animus-ingest/internal/config"
	"github.com/animus-labs/animus-ingest/internal/datasource"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/pipeline"
	"github.com/animus-labs/animus-ingest/internal/platform/unitlog"
	"github.com/animus-labs/animus-ingest/internal/reader"
	"github.com/animus-labs/animus-ingest/internal/report"
	"github.com/animus-labs/animus-ingest/internal/transfer"
)

// ResultCountMismatch is returned by Do when the workspace held a different
// number of files than the unit was told to expect. It overrides the
// pipeline's own result.
const ResultCountMismatch = -1

var (
	ErrMissingCollaborator = errors.New("missing collaborator")
	ErrNotStarted          = errors.New("unit not started")
)

// Runner is the run pipeline of a unit. Results are 0 on success and
// non-zero on failure, and may be OR-combined.
type Runner interface {
	Run(ctx context.Context) int
	RunRetry(ctx context.Context) int
}

// DataSource lists the staged files of a unit.
type DataSource interface {
	pipeline.Source
	NumEntries() int
}

// RemoteReader holds the pending strategies of the whole listing.
type RemoteReader interface {
	Pending() map[string]*naming.Strategy
	SetHeaders(ctx context.Context, s *naming.Strategy, fqn string) error
}

type (
	RunnerFactory     func(deps pipeline.Deps) (Runner, error)
	DataSourceFactory func(cfg config.Config, rep *report.Reporter, logger *slog.Logger) (DataSource, error)
)

// Deps are the collaborators shared by all units of a run.
type Deps struct {
	Collection   *naming.Collection
	Clients      *clients.Bundle
	RemoteReader RemoteReader
	StagedReader reader.Reader
	Reporter     *report.Reporter
	MetaVisitors []pipeline.Visitor
	DataVisitors []pipeline.Visitor
	// Upload defaults to an archive transfer over Clients.
	Upload transfer.Putter
	Logger *slog.Logger

	NewRunner     RunnerFactory
	NewDataSource DataSourceFactory
}

type State int

const (
	Created State = iota
	Started
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Unit struct {
	cfg     config.Config
	deps    Deps
	label   string
	workDir string
	logPath string
	level   slog.Level

	base   *slog.Logger
	logger *slog.Logger
	sink   *unitlog.Sink

	mu         sync.Mutex
	state      State
	numEntries int
	entryTime  time.Time
}

// New builds the unit covering (prev, current]. cfg is copied; the unit
// never changes the caller's configuration.
func New(cfg config.Config, deps Deps, prev, current time.Time) (*Unit, error) {
	if err := checkDeps(&deps); err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Upload == nil {
		archive, err := transfer.NewArchive(deps.Clients, deps.Logger)
		if err != nil {
			return nil, fmt.Errorf("%w: upload transfer: %v", ErrMissingCollaborator, err)
		}
		deps.Upload = archive
	}
	if deps.NewRunner == nil {
		deps.NewRunner = func(d pipeline.Deps) (Runner, error) { return pipeline.New(d) }
	}
	if deps.NewDataSource == nil {
		deps.NewDataSource = func(c config.Config, rep *report.Reporter, logger *slog.Logger) (DataSource, error) {
			return datasource.NewLocal(c, rep, logger)
		}
	}

	label := Label(prev, current)
	u := &Unit{
		cfg:     cfg.Clone(),
		deps:    deps,
		label:   label,
		workDir: filepath.Join(cfg.WorkingDirectory, label),
		level:   level,
		base:    deps.Logger.With("component", "ExecutionUnit", "label", label),
	}
	if cfg.LogToFile {
		dir := cfg.LogFileDirectory
		if dir == "" {
			dir = cfg.WorkingDirectory
		}
		u.logPath = filepath.Join(dir, label+".log")
	}
	u.logger = u.base
	return u, nil
}

func checkDeps(d *Deps) error {
	var missing []string
	if d.Collection == nil {
		missing = append(missing, "collection")
	}
	if d.Clients == nil {
		missing = append(missing, "clients")
	}
	if d.RemoteReader == nil {
		missing = append(missing, "remote metadata reader")
	}
	if d.StagedReader == nil {
		missing = append(missing, "staged metadata reader")
	}
	if d.Reporter == nil {
		missing = append(missing, "reporter")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingCollaborator, missing)
	}
	return nil
}

func (u *Unit) Label() string { return u.label }

func (u *Unit) WorkingDirectory() string { return u.workDir }

// LogPath is empty when the unit does not log to a file.
func (u *Unit) LogPath() string { return u.logPath }

func (u *Unit) TaskTypes() config.TaskSet { return slices.Clone(u.cfg.TaskTypes) }

func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// NumEntries is the number of files the listing promised for this unit.
func (u *Unit) NumEntries() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.numEntries
}

func (u *Unit) SetNumEntries(n int) {
	u.mu.Lock()
	u.numEntries = n
	u.mu.Unlock()
}

// EntryTime is the listing time of the newest entry in the unit.
func (u *Unit) EntryTime() time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.entryTime
}

func (u *Unit) SetEntryTime(t time.Time) {
	u.mu.Lock()
	u.entryTime = t.UTC()
	u.mu.Unlock()
}

// Logger returns the unit's logger, which also writes to the unit log file
// between Start and Stop.
func (u *Unit) Logger() *slog.Logger { return u.logger }

// Start attaches the log file, when configured, and creates the workspace.
func (u *Unit) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != Created {
		return fmt.Errorf("start unit %s: already %s", u.label, u.state)
	}
	if u.logPath != "" {
		sink, err := unitlog.Open(u.logPath, u.level)
		if err != nil {
			return fmt.Errorf("start unit %s: %w", u.label, err)
		}
		u.sink = sink
		u.logger = slog.New(unitlog.Tee(u.deps.Logger.Handler(), sink.Handler())).
			With("component", "ExecutionUnit", "label", u.label)
	}
	if err := os.MkdirAll(u.workDir, 0o755); err != nil {
		return fmt.Errorf("start unit %s: create workspace: %w", u.label, err)
	}
	u.state = Started
	u.logger.Debug("started", "workspace", u.workDir, "log_path", u.logPath)
	return nil
}

// Stop removes the workspace when allowed, then releases the log file. The
// log file is released even when cleanup fails; cleanup failures are logged
// and not returned.
func (u *Unit) Stop() (err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	defer func() {
		if u.sink == nil {
			return
		}
		err = u.sink.Close()
		u.sink = nil
		u.logger = u.base
	}()
	u.state = Stopped
	u.cleanWorkspace()
	return nil
}

func (u *Unit) cleanWorkspace() {
	info, err := os.Stat(u.workDir)
	if err != nil || !info.IsDir() {
		return
	}
	if u.cfg.TaskTypes.HasAny(u.cfg.PreserveTaskTypes...) {
		u.logger.Debug("preserving workspace", "workspace", u.workDir)
		return
	}
	empty, err := isEmpty(u.workDir)
	if err != nil {
		u.logger.Error("inspect workspace", "workspace", u.workDir, "error", err)
		return
	}
	if !empty && !u.cfg.CleanupFilesWhenStoring {
		return
	}
	u.logger.Error("removing workspace", "workspace", u.workDir, "empty", empty)
	if err := os.RemoveAll(u.workDir); err != nil {
		u.logger.Error("remove workspace", "workspace", u.workDir, "error", err)
	}
}

func isEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// Do runs the pipeline over the staged files of the workspace. It returns
// the pipeline result, or ResultCountMismatch when the workspace held a
// different number of files than NumEntries. The error is reserved for
// faults that prevented the run.
func (u *Unit) Do(ctx context.Context) (int, error) {
	u.mu.Lock()
	if u.state != Started {
		state := u.state
		u.mu.Unlock()
		return 0, fmt.Errorf("do unit %s: %w (state %s)", u.label, ErrNotStarted, state)
	}
	u.state = Running
	expected := u.numEntries
	logger := u.logger
	u.mu.Unlock()

	logger.Info("begin do", "entries", expected)
	if err := u.reuseStaged(ctx, logger); err != nil {
		return 0, err
	}

	cfg := u.derivedConfig()
	logger.Debug("derived config", "data_sources", cfg.DataSources, "use_local_files", cfg.UseLocalFiles)

	ds, err := u.deps.NewDataSource(cfg, u.deps.Reporter, logger)
	if err != nil {
		return 0, fmt.Errorf("do unit %s: data source: %w", u.label, err)
	}
	runner, err := u.deps.NewRunner(pipeline.Deps{
		Config:       cfg,
		Collection:   u.deps.Collection,
		MetaVisitors: u.deps.MetaVisitors,
		DataVisitors: u.deps.DataVisitors,
		Stage:        transfer.Local{Logger: logger},
		Upload:       u.deps.Upload,
		Reader:       u.deps.StagedReader,
		Clients:      u.deps.Clients,
		Reporter:     u.deps.Reporter,
		DataSource:   ds,
		Logger:       logger,
	})
	if err != nil {
		return 0, fmt.Errorf("do unit %s: runner: %w", u.label, err)
	}

	result := runner.Run(ctx)
	if cfg.CleanupFilesWhenStoring {
		result |= runner.RunRetry(ctx)
	}

	if found := ds.NumEntries(); found != expected {
		logger.Error("entry count mismatch", "expected", expected, "found", found)
		result = ResultCountMismatch
	}
	logger.Debug("end do", "result", result)
	return result, nil
}

// derivedConfig points a copy of the unit configuration at the workspace
// alone.
func (u *Unit) derivedConfig() config.Config {
	cfg := u.cfg.Clone()
	cfg.UseLocalFiles = true
	cfg.DataSources = []string{u.workDir}
	cfg.RecurseDataSources = true
	return cfg
}

// reuseStaged pushes the headers of files already in the workspace into the
// remote reader's pending entries with the same file name, so they are not
// fetched from the remote side again.
func (u *Unit) reuseStaged(ctx context.Context, logger *slog.Logger) error {
	staged := map[string]string{}
	err := filepath.WalkDir(u.workDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !naming.HasExtension(d.Name(), u.cfg.StagedExtensions) {
			return nil
		}
		if _, seen := staged[d.Name()]; !seen {
			staged[d.Name()] = p
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("do unit %s: scan workspace: %w", u.label, err)
	}
	if len(staged) == 0 {
		return nil
	}

	pending := u.deps.RemoteReader.Pending()
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		s := pending[key]
		fqn, ok := staged[s.FileName()]
		if !ok {
			continue
		}
		if err := u.deps.RemoteReader.SetHeaders(ctx, s, fqn); err != nil {
			logger.Warn("reuse staged headers", "key", key, "path", fqn, "error", err)
			continue
		}
		logger.Debug("reused staged headers", "key", key, "path", fqn)
	}
	return nil
}
