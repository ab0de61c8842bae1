package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
	"github.com/blackmichael/social-engage/internal/firehose"
)

// StatusProvider reports the persisted engagement state.
type StatusProvider interface {
	Status(ctx context.Context) (*engagement.StatusReport, error)
}

// StreamStats reports the firehose subscriber's progress.
type StreamStats interface {
	Stats() firehose.Stats
}

// Server is the watch daemon's HTTP server: a liveness probe and a JSON
// status page.
type Server struct {
	status     StatusProvider
	stream     StreamStats
	logger     *slog.Logger
	started    time.Time
	handler    http.Handler
	httpServer *http.Server
}

// NewServer creates a new HTTP server listening on port.
func NewServer(port int, status StatusProvider, stream StreamStats, logger *slog.Logger) *Server {
	s := &Server{
		status:  status,
		stream:  stream,
		logger:  logger,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	s.handler = withLogging(logger, mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Store    string                   `json:"store"`
	Records  int                      `json:"records"`
	Outcomes map[domain.Outcome]int   `json:"outcomes"`
	Pending  int                      `json:"pending"`
	Cursors  map[string]domain.Cursor `json:"cursors"`
	Stream   *firehose.Stats          `json:"stream,omitempty"`
	Uptime   string                   `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := s.status.Status(r.Context())
	if err != nil {
		s.logger.Error("failed to load status", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to load state")
		return
	}

	resp := statusResponse{
		Store:    rep.StoreLocation,
		Records:  rep.Records,
		Outcomes: rep.Outcomes,
		Pending:  len(rep.Pending),
		Cursors:  rep.Cursors,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if s.stream != nil {
		st := s.stream.Stats()
		resp.Stream = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
