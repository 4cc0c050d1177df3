package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mbtatracker-data/internal/common/logger"
	"github.com/mbtatracker-data/pkg/mbta-realtime/models"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	defaultLimit    = 50
	maxLimit        = 1000
)

// EventStore is the read side of the stop event store
type EventStore interface {
	Recent(ctx context.Context, routeID string, limit int) ([]models.StopEvent, error)
	CountByRoute(ctx context.Context) (map[string]int64, error)
}

// Sources feed the endpoints. Nil funcs are omitted from responses.
type Sources struct {
	Streaming    func() bool
	StreamStatus func() interface{}
	Reports      func() map[string]interface{}
	Store        EventStore
}

type Server struct {
	addr    string
	sources Sources
	logger  logger.Logger
	router  chi.Router
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatsResponse struct {
	Stream    interface{}            `json:"stream,omitempty"`
	Store     map[string]int64       `json:"store,omitempty"`
	Reporter  map[string]interface{} `json:"reporter,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewServer(addr string, sources Sources, log logger.Logger) *Server {
	s := &Server{
		addr:    addr,
		sources: sources,
		logger:  log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/routes/{routeID}/events", s.handleRecentEvents)

	s.router = r
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully. A failure to
// bind is logged and returns nil so the status surface never stops ingestion.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error("Health server disabled, cannot listen", "addr", s.addr, "error", err)
		return nil
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("Health server stopped", "error", err)
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Health server shutdown failed", "error", err)
		return nil
	}
	s.logger.Info("Health server stopped")
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.sources.Streaming != nil && !s.sources.Streaming() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "not streaming",
			"timestamp": time.Now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp := StatsResponse{Timestamp: time.Now().UTC()}
	if s.sources.StreamStatus != nil {
		resp.Stream = s.sources.StreamStatus()
	}
	if s.sources.Reports != nil {
		resp.Reporter = s.sources.Reports()
	}
	if s.sources.Store != nil {
		counts, err := s.sources.Store.CountByRoute(ctx)
		if err != nil {
			s.logger.Error("Failed to count stop events", "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to count stop events"})
			return
		}
		resp.Store = counts
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if s.sources.Store == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "No event store configured"})
		return
	}

	routeID := chi.URLParam(r, "routeID")
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLimit {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	events, err := s.sources.Store.Recent(ctx, routeID, limit)
	if err != nil {
		s.logger.Error("Failed to read stop events", "route_id", routeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to read stop events"})
		return
	}
	if events == nil {
		events = []models.StopEvent{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String())
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
