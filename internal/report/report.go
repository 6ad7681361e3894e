// Package report counts what a run pipeline did with its files.
package report

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

type Summary struct {
	Todo    int64
	Success int64
	Failure int64
	Retry   int64
	Skipped int64
}

// Reporter is safe for concurrent use. Failures are kept by key so a unit
// can tell which files to retry.
type Reporter struct {
	logger *slog.Logger

	todo    atomic.Int64
	success atomic.Int64
	failure atomic.Int64
	retry   atomic.Int64
	skipped atomic.Int64

	mu       sync.Mutex
	failures map[string]error
}

func New(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		logger:   logger.With("component", "Reporter"),
		failures: map[string]error{},
	}
}

func (r *Reporter) CaptureTodo(n int) {
	r.todo.Add(int64(n))
	r.logger.Info("todo", "count", n, "total", r.todo.Load())
}

func (r *Reporter) CaptureSuccess(key string) {
	r.success.Add(1)
	r.mu.Lock()
	delete(r.failures, key)
	r.mu.Unlock()
	r.logger.Debug("success", "key", key)
}

func (r *Reporter) CaptureFailure(key string, err error) {
	r.failure.Add(1)
	r.mu.Lock()
	r.failures[key] = err
	r.mu.Unlock()
	r.logger.Error("failure", "key", key, "error", err)
}

func (r *Reporter) CaptureRetry(key string) {
	r.retry.Add(1)
	r.logger.Info("retry", "key", key)
}

func (r *Reporter) CaptureSkipped(key, reason string) {
	r.skipped.Add(1)
	r.logger.Info("skipped", "key", key, "reason", reason)
}

// Failures returns the keys whose latest outcome was a failure.
func (r *Reporter) Failures() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]error, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

func (r *Reporter) Snapshot() Summary {
	return Summary{
		Todo:    r.todo.Load(),
		Success: r.success.Load(),
		Failure: r.failure.Load(),
		Retry:   r.retry.Load(),
		Skipped: r.skipped.Load(),
	}
}

// Log writes the summary at info level with the given attributes.
func (r *Reporter) Log(msg string, args ...any) {
	s := r.Snapshot()
	r.logger.Info(msg, append(args,
		"todo", s.Todo,
		"success", s.Success,
		"failure", s.Failure,
		"retry", s.Retry,
		"skipped", s.Skipped,
	)...)
}
