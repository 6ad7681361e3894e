package execunit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/animus-labs/animus-ingest/internal/clients"
	"github.com/animus-labs/animus-ingest/internal/config"
	"github.com/animus-labs/animus-ingest/internal/fits/fitstest"
	"github.com/animus-labs/animus-ingest/internal/naming"
	"github.com/animus-labs/animus-ingest/internal/pipeline"
	"github.com/animus-labs/animus-ingest/internal/reader"
	"github.com/animus-labs/animus-ingest/internal/report"
	"github.com/animus-labs/animus-ingest/internal/storage/objectstore"
)

var (
	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memStore struct {
	mu   sync.Mutex
	keys []string
}

func (m *memStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ objectstore.PutOptions) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	m.mu.Lock()
	m.keys = append(m.keys, bucket+"/"+key)
	m.mu.Unlock()
	return nil
}

func (m *memStore) Get(context.Context, string, string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	return nil, objectstore.ObjectInfo{}, objectstore.ErrNotFound
}

func (m *memStore) Stat(context.Context, string, string) (objectstore.ObjectInfo, error) {
	return objectstore.ObjectInfo{}, objectstore.ErrNotFound
}

func (m *memStore) Delete(context.Context, string, string) error { return nil }

type fakeRunner struct {
	run, retry           int
	runCalls, retryCalls int
}

func (f *fakeRunner) Run(context.Context) int      { f.runCalls++; return f.run }
func (f *fakeRunner) RunRetry(context.Context) int { f.retryCalls++; return f.retry }

type fakeDataSource struct{ n int }

func (f fakeDataSource) Entries(context.Context) ([]string, error) { return nil, nil }
func (f fakeDataSource) NumEntries() int                            { return f.n }

type fakeRemote struct {
	pending map[string]*naming.Strategy
	set     map[string]string
}

func (f *fakeRemote) Pending() map[string]*naming.Strategy { return f.pending }

func (f *fakeRemote) SetHeaders(_ context.Context, s *naming.Strategy, fqn string) error {
	if f.set == nil {
		f.set = map[string]string{}
	}
	f.set[s.Key()] = fqn
	return nil
}

type harness struct {
	cfg     config.Config
	deps    Deps
	runner  *fakeRunner
	remote  *fakeRemote
	derived []config.Config
	found   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	coll, err := naming.NewCollection(naming.DefaultCollectionConfig("TEST"))
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	cfg := config.Default()
	cfg.Collection = "TEST"
	cfg.WorkingDirectory = t.TempDir()
	cfg.DataSources = []string{"/global/listing"}
	cfg.TaskTypes = config.TaskSet{config.TaskStore, config.TaskIngest}

	h := &harness{cfg: cfg, runner: &fakeRunner{}, remote: &fakeRemote{pending: map[string]*naming.Strategy{}}}
	h.deps = Deps{
		Collection:   coll,
		Clients:      &clients.Bundle{Store: &memStore{}, Bucket: "archive", PreviewBucket: "archive"},
		RemoteReader: h.remote,
		StagedReader: reader.NewFileReader(quietLogger()),
		Reporter:     report.New(quietLogger()),
		Logger:       quietLogger(),
		NewRunner: func(d pipeline.Deps) (Runner, error) {
			h.derived = append(h.derived, d.Config)
			return h.runner, nil
		},
		NewDataSource: func(config.Config, *report.Reporter, *slog.Logger) (DataSource, error) {
			return fakeDataSource{n: h.found}, nil
		},
	}
	return h
}

func (h *harness) unit(t *testing.T) *Unit {
	t.Helper()
	u, err := New(h.cfg, h.deps, t0, t1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return u
}

func TestLabel(t *testing.T) {
	a := Label(t0, t1)
	if a != "2024-03-01T10_00_00_000000_2024-03-01T11_00_00_000000" {
		t.Fatalf("Label()=%q", a)
	}
	pairs := [][2]time.Time{
		{t0, t1},
		{t0, t1.Add(time.Microsecond)},
		{t0.Add(-time.Hour), t1},
		{t1, t0},
	}
	seen := map[string]bool{}
	for _, p := range pairs {
		l := Label(p[0], p[1])
		if seen[l] {
			t.Fatalf("duplicate label %q", l)
		}
		seen[l] = true
		if strings.ContainsAny(l, ":./\\ ") {
			t.Fatalf("label %q is not filesystem safe", l)
		}
	}
	// the zone of the inputs does not matter
	east := time.FixedZone("east", 5*3600)
	if Label(t0.In(east), t1.In(east)) != a {
		t.Fatalf("label depends on time zone")
	}
}

func TestStartStopRemovesEmptyWorkspace(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t)
	if u.WorkingDirectory() != filepath.Join(h.cfg.WorkingDirectory, u.Label()) {
		t.Fatalf("workspace=%s", u.WorkingDirectory())
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if info, err := os.Stat(u.WorkingDirectory()); err != nil || !info.IsDir() {
		t.Fatalf("workspace not created: %v", err)
	}
	if err := u.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(u.WorkingDirectory()); !os.IsNotExist(err) {
		t.Fatalf("workspace left behind: %v", err)
	}
	if u.State() != Stopped {
		t.Fatalf("state=%s", u.State())
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := u.Start(); err == nil {
		t.Fatalf("second Start expected error")
	}
	_ = u.Stop()
}

func TestStopPreservesWorkspaceForScrape(t *testing.T) {
	h := newHarness(t)
	h.cfg.TaskTypes = config.TaskSet{config.TaskScrape}
	h.cfg.CleanupFilesWhenStoring = true
	u := h.unit(t)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	staged := filepath.Join(u.WorkingDirectory(), "obs1.fits")
	fitstest.Write(t, staged)
	if err := u.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("preserved workspace lost its files: %v", err)
	}

	// an empty workspace is preserved as well
	h2 := newHarness(t)
	h2.cfg.TaskTypes = config.TaskSet{config.TaskScrape}
	u2 := h2.unit(t)
	if err := u2.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := u2.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(u2.WorkingDirectory()); err != nil {
		t.Fatalf("empty preserved workspace removed: %v", err)
	}
}

func TestStopNonEmptyWorkspaceFollowsCleanup(t *testing.T) {
	for _, cleanup := range []bool{false, true} {
		h := newHarness(t)
		h.cfg.CleanupFilesWhenStoring = cleanup
		u := h.unit(t)
		if err := u.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		fitstest.Write(t, filepath.Join(u.WorkingDirectory(), "obs1.fits"))
		if err := u.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		_, err := os.Stat(u.WorkingDirectory())
		if cleanup && !os.IsNotExist(err) {
			t.Fatalf("cleanup=true: workspace kept: %v", err)
		}
		if !cleanup && err != nil {
			t.Fatalf("cleanup=false: workspace removed: %v", err)
		}
	}
}

func TestDoReturnsMismatchEvenWhenRunnerSucceeds(t *testing.T) {
	h := newHarness(t)
	h.found = 2
	u := h.unit(t)
	u.SetNumEntries(3)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer u.Stop()
	got, err := u.Do(context.Background())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != ResultCountMismatch {
		t.Fatalf("Do()=%d, want ResultCountMismatch", got)
	}
	if h.runner.runCalls != 1 {
		t.Fatalf("runner ran %d times", h.runner.runCalls)
	}
}

func TestDoCombinesRetryOnlyWithCleanup(t *testing.T) {
	cases := []struct {
		cleanup    bool
		run, retry int
		want       int
		retryCalls int
	}{
		{false, 0, 1, 0, 0},
		{true, 0, 1, 1, 1},
		{true, 1, 0, 1, 1},
		{true, 0, 0, 0, 1},
		{false, 1, 0, 1, 0},
	}
	for _, tc := range cases {
		h := newHarness(t)
		h.cfg.CleanupFilesWhenStoring = tc.cleanup
		h.runner.run, h.runner.retry = tc.run, tc.retry
		u := h.unit(t)
		if err := u.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
		got, err := u.Do(context.Background())
		_ = u.Stop()
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if got != tc.want || h.runner.retryCalls != tc.retryCalls {
			t.Fatalf("%+v: Do()=%d retryCalls=%d", tc, got, h.runner.retryCalls)
		}
	}
}

func TestDoDerivesWorkspaceConfig(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer u.Stop()
	if _, err := u.Do(context.Background()); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(h.derived) != 1 {
		t.Fatalf("runner built %d times", len(h.derived))
	}
	d := h.derived[0]
	if !d.UseLocalFiles || !d.RecurseDataSources {
		t.Fatalf("derived config=%+v", d)
	}
	if !reflect.DeepEqual(d.DataSources, []string{u.WorkingDirectory()}) {
		t.Fatalf("derived data sources=%v", d.DataSources)
	}
	if !reflect.DeepEqual(h.cfg.DataSources, []string{"/global/listing"}) {
		t.Fatalf("global data sources changed: %v", h.cfg.DataSources)
	}
	d.TaskTypes[0] = config.TaskVisit
	if u.TaskTypes()[0] != config.TaskStore {
		t.Fatalf("derived config aliases the unit's task types")
	}
}

func TestDoReusesStagedHeaders(t *testing.T) {
	h := newHarness(t)
	coll := h.deps.Collection
	for _, name := range []string{"obs1.fits", "obs2.fits", "obs3.fits"} {
		s := naming.NewStrategy(coll, "vos:TEST/"+name, []string{"vos:TEST/" + name})
		h.remote.pending[s.Key()] = s
	}
	u := h.unit(t)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer u.Stop()
	one := filepath.Join(u.WorkingDirectory(), "obs1.fits")
	two := filepath.Join(u.WorkingDirectory(), "nested", "obs2.fits")
	if err := os.MkdirAll(filepath.Dir(two), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fitstest.Write(t, one)
	fitstest.Write(t, two)
	if err := os.WriteFile(filepath.Join(u.WorkingDirectory(), "obs3.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := u.Do(context.Background()); err != nil {
		t.Fatalf("Do: %v", err)
	}
	want := map[string]string{
		"cadc:TEST/obs1.fits": one,
		"cadc:TEST/obs2.fits": two,
	}
	if !reflect.DeepEqual(h.remote.set, want) {
		t.Fatalf("SetHeaders calls=%v, want %v", h.remote.set, want)
	}
}

func TestNewReportsMissingCollaborator(t *testing.T) {
	h := newHarness(t)
	h.deps.RemoteReader = nil
	if _, err := New(h.cfg, h.deps, t0, t1); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("err=%v, want ErrMissingCollaborator", err)
	}
	h = newHarness(t)
	h.deps.Clients = nil
	if _, err := New(h.cfg, h.deps, t0, t1); !errors.Is(err, ErrMissingCollaborator) {
		t.Fatalf("err=%v, want ErrMissingCollaborator", err)
	}
}

func TestDoBeforeStart(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t)
	if _, err := u.Do(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("err=%v, want ErrNotStarted", err)
	}
	if h.runner.runCalls != 0 {
		t.Fatalf("runner ran before Start")
	}
}

var logLine = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}:INFO:ExecutionUnit:\d+:hello label=\S+ n=1$`)

func TestLogFile(t *testing.T) {
	h := newHarness(t)
	h.cfg.LogToFile = true
	h.cfg.LogFileDirectory = filepath.Join(t.TempDir(), "logs")
	var stdout bytes.Buffer
	h.deps.Logger = slog.New(slog.NewJSONHandler(&stdout, nil))
	u := h.unit(t)
	if want := filepath.Join(h.cfg.LogFileDirectory, u.Label()+".log"); u.LogPath() != want {
		t.Fatalf("LogPath()=%s, want %s", u.LogPath(), want)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	logger := u.Logger()
	logger.Debug("filtered")
	logger.Info("hello", "n", 1)
	if err := u.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	logger.Info("after stop")

	data, err := os.ReadFile(u.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var hello []string
	for _, l := range lines {
		if strings.Contains(l, "filtered") || strings.Contains(l, "after stop") {
			t.Fatalf("unexpected line %q", l)
		}
		if strings.Contains(l, "hello") {
			hello = append(hello, l)
		}
	}
	if len(hello) != 1 || !logLine.MatchString(hello[0]) {
		t.Fatalf("log lines=%q", lines)
	}
	if !strings.Contains(stdout.String(), `"msg":"hello"`) {
		t.Fatalf("record missing from process log: %s", stdout.String())
	}
}

func TestLogFileDefaultsToWorkingRoot(t *testing.T) {
	h := newHarness(t)
	h.cfg.LogToFile = true
	u := h.unit(t)
	if want := filepath.Join(h.cfg.WorkingDirectory, u.Label()+".log"); u.LogPath() != want {
		t.Fatalf("LogPath()=%s, want %s", u.LogPath(), want)
	}
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := u.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(u.LogPath()); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if _, err := os.Stat(u.WorkingDirectory()); !os.IsNotExist(err) {
		t.Fatalf("workspace kept: %v", err)
	}
}

func TestStopReleasesLogWhenWorkspaceIsGone(t *testing.T) {
	h := newHarness(t)
	h.cfg.LogToFile = true
	u := h.unit(t)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	logger := u.Logger()
	if err := os.RemoveAll(u.WorkingDirectory()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := u.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	logger.Info("dropped")
	data, err := os.ReadFile(u.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Fatalf("sink still attached after Stop")
	}
	if err := u.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestEntryTimeAndNumEntries(t *testing.T) {
	h := newHarness(t)
	u := h.unit(t)
	east := time.FixedZone("east", 3600)
	u.SetEntryTime(t1.In(east))
	if !u.EntryTime().Equal(t1) || u.EntryTime().Location() != time.UTC {
		t.Fatalf("EntryTime()=%v", u.EntryTime())
	}
	u.SetNumEntries(4)
	if u.NumEntries() != 4 {
		t.Fatalf("NumEntries()=%d", u.NumEntries())
	}
}

func TestDoWithPipeline(t *testing.T) {
	h := newHarness(t)
	h.deps.NewRunner = nil
	h.deps.NewDataSource = nil
	h.deps.MetaVisitors = []pipeline.Visitor{pipeline.RequireHeaders}
	h.cfg.CleanupFilesWhenStoring = true
	store := &memStore{}
	h.deps.Clients = &clients.Bundle{Store: store, Bucket: "archive", PreviewBucket: "previews"}
	u := h.unit(t)
	u.SetNumEntries(2)
	if err := u.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	fitstest.Write(t, filepath.Join(u.WorkingDirectory(), "obs1.fits"))
	fitstest.Write(t, filepath.Join(u.WorkingDirectory(), "obs2.fits"))

	got, err := u.Do(context.Background())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != pipeline.Success {
		t.Fatalf("Do()=%d", got)
	}
	if err := u.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := []string{"archive/TEST/obs1.fits", "archive/TEST/obs2.fits"}
	if !reflect.DeepEqual(store.keys, want) {
		t.Fatalf("stored=%v, want %v", store.keys, want)
	}
	if _, err := os.Stat(u.WorkingDirectory()); !os.IsNotExist(err) {
		t.Fatalf("workspace kept after successful cleanup run: %v", err)
	}
	if s := h.deps.Reporter.Snapshot(); s.Success != 2 || s.Todo != 2 {
		t.Fatalf("summary=%+v", s)
	}
}
