// Package health exposes a lightweight HTTP health endpoint for container probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"tg_payment_link_bot/internal/logging"
)

const (
	pingTimeout        = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// BackendChecker defines the subset of payments-backend behavior required for health.
type BackendChecker interface {
	Ping(ctx context.Context) error
}

// SessionChecker reports durable session-store connectivity and size.
type SessionChecker interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// Option customizes server construction.
type Option func(*Server)

// WithSessionChecker adds durable session-store diagnostics to the health
// payload. Without it the store is memory-backed and reported on only via the
// overall status.
func WithSessionChecker(checker SessionChecker) Option {
	return func(s *Server) {
		s.sessionChecker = checker
	}
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server         *http.Server
	logger         *logrus.Entry
	backendChecker BackendChecker
	sessionChecker SessionChecker
}

type response struct {
	Status       string `json:"status"`
	Stripe       string `json:"stripe,omitempty"`
	Sessions     string `json:"sessions,omitempty"`
	SessionCount *int64 `json:"session_count,omitempty"`
}

// NewServer constructs a health server that exposes GET /healthz on the provided port.
func NewServer(port int, backendChecker BackendChecker, logger *logrus.Entry, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:         logger,
		backendChecker: backendChecker,
	}

	for _, opt := range opts {
		opt(srv)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}

	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if s.backendChecker == nil {
		resp.Status = "degraded"
		resp.Stripe = "error"
		s.logger.WithField("event", "health_backend_missing").Warn("backend checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.backendChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Stripe = "error"
			s.logger.WithFields(logging.Fields{
				"event": "health_backend_error",
			}).WithError(err).Warn("backend ping failed during health check")
		}
	}

	if s.sessionChecker != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.sessionChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Sessions = "error"
			s.logger.WithFields(logging.Fields{
				"event": "health_sessions_error",
			}).WithError(err).Warn("session store ping failed during health check")
		} else {
			resp.Sessions = "ok"

			countCtx, cancelCount := context.WithTimeout(ctx, pingTimeout)
			count, err := s.sessionChecker.Count(countCtx)
			cancelCount()

			if err != nil {
				s.logger.WithFields(logging.Fields{
					"event": "health_sessions_count_error",
				}).WithError(err).Warn("session count failed during health check")
			} else {
				resp.SessionCount = &count
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}
