package unitlog

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandlerLineFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo)).With(ComponentKey, "ExecutionUnit")
	logger.Info("begin do", "entries", 3)
	logger.Debug("dropped")

	out := strings.TrimSpace(buf.String())
	if strings.Count(out, "\n") != 0 {
		t.Fatalf("expected one line, got %q", out)
	}
	// timestamp contains colons itself, so split from the right of the level.
	idx := strings.Index(out, ":INFO:")
	if idx < 0 {
		t.Fatalf("missing level column: %q", out)
	}
	rest := strings.SplitN(out[idx+len(":INFO:"):], ":", 3)
	if len(rest) != 3 {
		t.Fatalf("unexpected columns: %q", out)
	}
	if strings.TrimSpace(rest[0]) != "ExecutionUnit" {
		t.Fatalf("component=%q", rest[0])
	}
	if rest[1] == "0" || rest[1] == "" {
		t.Fatalf("expected source line, got %q", rest[1])
	}
	if rest[2] != "begin do entries=3" {
		t.Fatalf("message=%q", rest[2])
	}
}

func TestHandlerGroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelDebug)).WithGroup("unit").With("label", "a_b")
	logger.Warn("odd", "n", 1)
	if !strings.Contains(buf.String(), " unit.label=a_b unit.n=1") {
		t.Fatalf("unexpected grouping: %q", buf.String())
	}
}

func TestSinkCloseDetaches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "unit.log")
	sink, err := Open(path, slog.LevelInfo)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	logger := slog.New(sink.Handler())
	logger.Info("kept")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	logger.Info("dropped")
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "kept") || strings.Contains(string(raw), "dropped") {
		t.Fatalf("unexpected log content: %q", raw)
	}
}

func TestTeeRespectsLevels(t *testing.T) {
	var info, debug bytes.Buffer
	logger := slog.New(Tee(NewHandler(&info, slog.LevelInfo), nil, NewHandler(&debug, slog.LevelDebug)))
	logger.Debug("detail")
	logger.Info("summary")
	if strings.Contains(info.String(), "detail") {
		t.Fatalf("info handler received debug record")
	}
	if !strings.Contains(debug.String(), "detail") || !strings.Contains(debug.String(), "summary") {
		t.Fatalf("debug handler missing records: %q", debug.String())
	}
}
