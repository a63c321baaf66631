// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkhoard Contributors

// Package observability serves Prometheus metrics and health probes on a
// listener separate from the web handler.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Probe paths.
const (
	PathMetrics   = "/metrics"
	PathLiveness  = "/healthz/liveness"
	PathReadiness = "/healthz/readiness"
)

// CheckTimeout bounds each dependency check run by the readiness probe.
const CheckTimeout = 2 * time.Second

// ReadinessChecker reports whether the web listener is accepting requests.
type ReadinessChecker func() bool

// Check reports whether a dependency such as the database can be used.
type Check func(ctx context.Context) error

// Health is the JSON body of both probes.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health statuses.
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusStarting = "starting"
	StatusDegraded = "degraded"
)

// Server exposes the process metrics registry and health probes.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker
	logger   *slog.Logger

	mu     sync.RWMutex
	checks map[string]Check

	running    atomic.Bool
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a Server listening on addr ("host:port").
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	return NewServerWithLogger(addr, readinessChecker, nil)
}

// NewServerWithLogger creates a Server with a custom logger. A nil logger
// uses slog.Default().
func NewServerWithLogger(addr string, readinessChecker ReadinessChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
		logger:   logger,
		checks:   make(map[string]Check),
	}
}

// Metrics returns the account and session counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// AddCheck registers a dependency check run by the readiness probe. Adding
// a name twice replaces the earlier check.
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler returns the probe and metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET "+PathLiveness, s.handleLiveness)
	mux.HandleFunc("GET "+PathReadiness, s.handleReadiness)
	return mux
}

// Start listens and serves in the background. The returned channel
// receives a serve failure and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("observability server failed", "error", err)
			errCh <- err
		}
	}()

	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown observability server").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, Health{Status: StatusOK})
}

// handleReadiness answers 503 until the web listener is up and while any
// dependency check fails.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	health := Health{Status: StatusReady, Checks: s.runChecks(r.Context())}
	code := http.StatusOK

	for _, result := range health.Checks {
		if result != StatusOK {
			health.Status = StatusDegraded
			code = http.StatusServiceUnavailable
		}
	}
	if s.isReady != nil && !s.isReady() {
		health.Status = StatusStarting
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, health)
}

func (s *Server) runChecks(ctx context.Context) map[string]string {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, CheckTimeout)
		err := checks[name](checkCtx)
		cancel()
		if err != nil {
			s.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			results[name] = err.Error()
			continue
		}
		results[name] = StatusOK
	}
	return results
}

func writeHealth(w http.ResponseWriter, code int, health Health) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	//nolint:errcheck // the prober may have gone away
	json.NewEncoder(w).Encode(health)
}
