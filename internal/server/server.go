package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/ingestion"
	"github.com/cyderes/wod-ingestion-service/internal/logging"
	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// Ingestor runs ingestion and reports on it
type Ingestor interface {
	IngestPage(ctx context.Context, page int) error
	Status(ctx context.Context) (*models.IngestionStatus, error)
}

// Server handles HTTP requests
type Server struct {
	config   config.ServerConfig
	ingestor Ingestor
	server   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, ingestor Ingestor) *Server {
	s := &Server{
		config:   cfg,
		ingestor: ingestor,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(hlog.NewHandler(logging.Component("http")))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/ingest", s.handleIngest)
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus handles GET requests for ingestion status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ingestor.Status(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve status: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleIngest runs one ingestion pass over the requested page
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	page, err := ingestion.ParsePage(r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.ingestor.IngestPage(r.Context(), page)
	switch {
	case errors.Is(err, ingestion.ErrIngestionRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Int("page", page).Msg("triggered ingestion failed")
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status": "failure",
			"page":   page,
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"page":   page,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
