// Package unitlog provides the per-unit log file sink.
//
// Records are written one per line as
//
//	timestamp:LEVEL:component:line:message key=value ...
//
// where component comes from the "component" attribute of the logger and line
// is the source line of the logging call.
package unitlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// ComponentKey is the attribute consumed as the component column.
const ComponentKey = "component"

const timeLayout = "2006-01-02 15:04:05.000"

// Handler is a slog.Handler producing the colon separated line format.
type Handler struct {
	out       *output
	level     slog.Leveler
	component string
	prefix    string
	attrs     []slog.Attr
}

type output struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{out: &output{w: w}, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	line := 0
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		line = frame.Line
	}
	component := h.component
	var extra bytes.Buffer
	for _, a := range h.attrs {
		writeAttr(&extra, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == ComponentKey {
			component = a.Value.String()
			return true
		}
		writeAttr(&extra, h.prefix, a)
		return true
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s:%s:%-12s:%d:%s", r.Time.Format(timeLayout), r.Level.String(), component, line, r.Message)
	buf.Write(extra.Bytes())
	buf.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	if h.out.closed {
		return nil
	}
	_, err := h.out.w.Write(buf.Bytes())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.prefix == "" && a.Key == ComponentKey {
			next.component = a.Value.String()
			continue
		}
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, prefix+a.Key+".", ga)
		}
		return
	}
	fmt.Fprintf(buf, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

// Sink owns one log file. Close detaches it: records arriving afterwards are
// dropped rather than written to a closed file.
type Sink struct {
	path    string
	file    *os.File
	handler *Handler
}

// Open creates (or appends to) the file at path, creating parent directories.
func Open(path string, level slog.Leveler) (*Sink, error) {
	if path == "" {
		return nil, errors.New("log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Sink{path: path, file: f, handler: NewHandler(f, level)}, nil
}

func (s *Sink) Path() string { return s.path }

func (s *Sink) Handler() slog.Handler { return s.handler }

// Close flushes and closes the file. It is safe to call more than once.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	out := s.handler.out
	out.mu.Lock()
	defer out.mu.Unlock()
	if out.closed {
		return nil
	}
	out.closed = true
	syncErr := s.file.Sync()
	closeErr := s.file.Close()
	return errors.Join(syncErr, closeErr)
}
