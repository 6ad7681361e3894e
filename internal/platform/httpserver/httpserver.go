// Package httpserver serves the worker's probe endpoints while a pass runs.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Service         string
	Addr            string
	ShutdownTimeout time.Duration
}

// Check is one dependency probed by /readyz.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// Probe answers /healthz, /readyz and /status for one service. Readiness
// requires every check to pass and the phase to be PhaseRunning.
type Probe struct {
	service string
	timeout time.Duration
	checks  []Check
	status  func() any
	phase   atomic.Value
}

const (
	PhaseStarting = "starting"
	PhaseRunning  = "running"
	PhaseDraining = "draining"
)

// NewProbe builds a probe. timeout bounds each check; status may be nil.
func NewProbe(service string, timeout time.Duration, status func() any, checks ...Check) *Probe {
	if timeout <= 0 {
		timeout = 750 * time.Millisecond
	}
	p := &Probe{service: service, timeout: timeout, checks: checks, status: status}
	p.phase.Store(PhaseStarting)
	return p
}

func (p *Probe) SetPhase(phase string) { p.phase.Store(phase) }

func (p *Probe) Phase() string { return p.phase.Load().(string) }

// Handler returns the probe routes behind request logging and panic recovery.
func (p *Probe) Handler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", p.healthz)
	mux.HandleFunc("GET /readyz", p.readyz)
	mux.HandleFunc("GET /status", p.statusz)
	return observe(logger, mux)
}

func (p *Probe) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"service": p.service, "status": "ok", "phase": p.Phase()})
}

type checkResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (p *Probe) readyz(w http.ResponseWriter, r *http.Request) {
	results := make([]checkResult, len(p.checks))
	var g errgroup.Group
	for i, c := range p.checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
			defer cancel()
			start := time.Now()
			res := checkResult{Name: c.Name, Status: "ok"}
			if err := c.Fn(ctx); err != nil {
				res.Status = "fail"
				res.Error = err.Error()
			}
			res.DurationMs = time.Since(start).Milliseconds()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	ready := p.Phase() == PhaseRunning
	for _, res := range results {
		ready = ready && res.Status == "ok"
	}
	body := map[string]any{"service": p.service, "phase": p.Phase(), "checks": results, "status": "ready"}
	if !ready {
		body["status"] = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (p *Probe) statusz(w http.ResponseWriter, _ *http.Request) {
	var snapshot any
	if p.status != nil {
		snapshot = p.status()
	}
	writeJSON(w, http.StatusOK, map[string]any{"service": p.service, "phase": p.Phase(), "status": snapshot})
}

// Run serves handler until ctx is done, then shuts down gracefully. When
// ready is non-nil it receives the bound address once listening.
func Run(ctx context.Context, logger *slog.Logger, cfg Config, handler http.Handler, ready chan<- string) error {
	switch {
	case cfg.Service == "":
		return errors.New("service is required")
	case cfg.Addr == "":
		return errors.New("addr is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	logger = logger.With("service", cfg.Service, "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	logger.Info("probe server listening")

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("probe server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type recorder struct {
	http.ResponseWriter
	status int
}

func (w *recorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// observe tags each request with an X-Request-Id, logs it and turns panics
// into 500 responses.
func observe(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		log := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)

		defer func() {
			if v := recover(); v != nil {
				log.Error("panic recovered", "panic", v)
				writeJSON(rec, http.StatusInternalServerError, map[string]any{"error": "internal_server_error", "request_id": id})
			}
			level := slog.LevelDebug
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "probe request", "status", rec.status, "duration_ms", time.Since(start).Milliseconds())
		}()
		next.ServeHTTP(rec, r)
	})
}
