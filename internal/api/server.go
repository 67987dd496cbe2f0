package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/ycrawler/internal/crawler"
	"github.com/JakeFAU/ycrawler/internal/metrics"
	"github.com/JakeFAU/ycrawler/internal/poller"
)

// LedgerView is the read side of the dedup ledger.
type LedgerView interface {
	Len() int
	Snapshot() []string
}

// LoopStatus is the read side of the poll loop.
type LoopStatus interface {
	State() poller.State
	Cycles() int64
	LastReport() (crawler.CycleReport, bool)
}

// Server wires HTTP handlers to the ledger and poll loop.
type Server struct {
	router chi.Router
	ledger LedgerView
	loop   LoopStatus
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ledger LedgerView, loop LoopStatus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ledger: ledger,
		loop:   loop,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/ledger", s.getLedger)
		r.Get("/cycles/last", s.lastCycle)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the first cycle has finished.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.loop == nil || s.loop.Cycles() == 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	if s.loop == nil {
		s.writeError(w, http.StatusServiceUnavailable, "poll loop not configured")
		return
	}
	payload := map[string]any{
		"state":  s.loop.State(),
		"cycles": s.loop.Cycles(),
	}
	if s.ledger != nil {
		payload["ledger_size"] = s.ledger.Len()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) getLedger(w http.ResponseWriter, _ *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ledger not configured")
		return
	}
	ids := s.ledger.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{"size": len(ids), "ids": ids})
}

func (s *Server) lastCycle(w http.ResponseWriter, _ *http.Request) {
	if s.loop == nil {
		s.writeError(w, http.StatusServiceUnavailable, "poll loop not configured")
		return
	}
	report, ok := s.loop.LastReport()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type requestIDKey struct{}

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
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
