package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/detector"
	"github.com/JakeFAU/stock-monitor/internal/health"
	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/metrics"
	"github.com/JakeFAU/stock-monitor/internal/scheduler"
	"github.com/JakeFAU/stock-monitor/internal/scraper"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// HealthView is the part of the health monitor the API reads and drives.
type HealthView interface {
	Status() health.Status
	Restarting() bool
	Restart(ctx context.Context, reason string) (bool, error)
}

// PoolView reports the live pool.
type PoolView interface {
	Active() bool
	Generation() int64
}

// TargetView reports per-target loop state.
type TargetView interface {
	Statuses() []scheduler.TargetStatus
}

// StockView reports per-target stock state.
type StockView interface {
	Snapshot() map[stock.Target]detector.TargetState
}

// Server wires HTTP handlers to the running monitor.
type Server struct {
	router  chi.Router
	health  HealthView
	pool    PoolView
	targets TargetView
	stock   StockView
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(healthView HealthView, pool PoolView, targets TargetView, stockView StockView, logger *zap.Logger) *Server {
	s := &Server{
		health:  healthView,
		pool:    pool,
		targets: targets,
		stock:   stockView,
		logger:  logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/targets", s.listTargets)
		r.Post("/pool/restart", s.restartPool)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	switch {
	case !s.pool.Active():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "pool inactive"})
	case s.health.Restarting():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "restarting"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type statusResponse struct {
	health.Status
	PoolActive     bool  `json:"pool_active"`
	PoolGeneration int64 `json:"pool_generation"`
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:         s.health.Status(),
		PoolActive:     s.pool.Active(),
		PoolGeneration: s.pool.Generation(),
	})
}

type targetResponse struct {
	scheduler.TargetStatus
	Adapter      string          `json:"adapter"`
	HasSignature bool            `json:"has_signature"`
	InStock      bool            `json:"in_stock"`
	Signature    stock.Signature `json:"signature,omitempty"`
	LastChangeAt time.Time       `json:"last_change_at,omitempty"`
}

func (s *Server) listTargets(w http.ResponseWriter, _ *http.Request) {
	states := s.stock.Snapshot()
	statuses := s.targets.Statuses()
	out := make([]targetResponse, 0, len(statuses))
	for _, st := range statuses {
		target := stock.Target(st.URL)
		resp := targetResponse{
			TargetStatus: st,
			Adapter:      scraper.Select(target).String(),
		}
		if state, ok := states[target]; ok {
			resp.HasSignature = state.Signature != stock.EmptySignature
			resp.InStock = state.InStock
			resp.Signature = state.Signature
			resp.LastChangeAt = state.LastChangeAt
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": out})
}

func (s *Server) restartPool(w http.ResponseWriter, r *http.Request) {
	// The restart outlives a dropped client; the pool must not be left half built.
	ctx := context.WithoutCancel(r.Context())
	ran, err := s.health.Restart(ctx, health.ReasonManual)
	if !ran {
		writeError(w, http.StatusConflict, "restart already in progress")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "restarted",
		"pool_generation": s.pool.Generation(),
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Debug("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
