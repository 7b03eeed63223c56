// Package api serves the admin HTTP endpoints: health and readiness
// probes, Prometheus metrics and a small status/config API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/queryman/queryman/internal/config"
	"github.com/queryman/queryman/internal/health"
	"github.com/queryman/queryman/internal/metrics"
	"github.com/queryman/queryman/internal/query"
)

// Server is the admin HTTP server.
type Server struct {
	checker *health.Checker
	metrics *metrics.Collector
	queue   *query.Queue

	mu     sync.RWMutex
	cfg    config.Config
	apiKey string

	httpServer *http.Server
	startTime  time.Time
}

// NewServer creates the admin server. The config snapshot is what
// /api/v1/config reports; SetConfig swaps it on hot reload.
func NewServer(checker *health.Checker, m *metrics.Collector, queue *query.Queue, cfg config.Config) *Server {
	return &Server{
		checker:   checker,
		metrics:   m,
		queue:     queue,
		cfg:       cfg,
		apiKey:    cfg.Admin.APIKey,
		startTime: time.Now(),
	}
}

// SetConfig replaces the reported config snapshot and the API key.
func (s *Server) SetConfig(cfg config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.apiKey = cfg.Admin.APIKey
	s.mu.Unlock()
}

// Start binds the admin listener and serves in the background.
func (s *Server) Start() error {
	s.mu.RLock()
	addr := net.JoinHostPort(s.cfg.Admin.Bind, strconv.Itoa(s.cfg.Admin.Port))
	s.mu.RUnlock()

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin server listening on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("admin server listening", "addr", l.Addr().String())
	go func() {
		if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server failed", "err", err)
		}
	}()
	return nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.securityHeaders)
	r.Use(s.authMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readyHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry,
		promhttp.HandlerOpts{})).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	v1.HandleFunc("/config", s.configHandler).Methods(http.MethodGet)
	return r
}

// Stop gracefully shuts down the admin server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// securityHeaders adds standard security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a Bearer token on the /api/v1 routes when an
// API key is configured. Probes and metrics stay open for scrapers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ready", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		s.mu.RLock()
		key := s.apiKey
		s.mu.RUnlock()
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+key {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	state := s.checker.GetState()
	code := http.StatusOK
	if state.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, state)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !s.checker.IsHealthy() {
		writeError(w, http.StatusServiceUnavailable, "database unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":  int64(time.Since(s.startTime).Seconds()),
		"go_version":      runtime.Version(),
		"goroutines":      runtime.NumGoroutine(),
		"memory_alloc_mb": mem.Alloc / 1024 / 1024,
		"queue_depth":     s.queue.Len(),
		"database": map[string]any{
			"healthy": s.checker.IsHealthy(),
		},
	})
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := s.cfg.Redacted()
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, cfg)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding admin response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
