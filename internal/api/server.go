package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"kasocial/internal/feed"
	"kasocial/internal/reconstructor"
	"kasocial/internal/writer"
)

// Server is the HTTP surface over the reconstruction core: profiles, feeds,
// stories, engagement, write progress, plus health and Prometheus metrics.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	recon      *reconstructor.Reconstructor
	feeds      *feed.Aggregator
	writes     *writer.Writer
	port       int
}

// NewServer creates the API server. All handlers share the same core
// components.
func NewServer(port int, recon *reconstructor.Reconstructor, feeds *feed.Aggregator, writes *writer.Writer) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		recon:  recon,
		feeds:  feeds,
		writes: writes,
		port:   port,
	}

	s.registerRoutes()
	return s
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Read endpoints
	s.mux.HandleFunc("/profiles", s.handleProfileBatch)
	s.mux.HandleFunc("/profiles/", s.handleProfileRoutes)
	s.mux.HandleFunc("/feed", s.handleFeed)
	s.mux.HandleFunc("/stories/", s.handleStoryRoutes)
	s.mux.HandleFunc("/content/", s.handleContentRoutes)

	// Write endpoints
	s.mux.HandleFunc("/writes", s.handleCreateWrite)
	s.mux.HandleFunc("/writes/", s.handleWriteRoutes)
}

// handleProfileRoutes routes /profiles/{address} and sub-paths.
func (s *Server) handleProfileRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/profiles/")
	parts := strings.Split(path, "/")

	// GET /profiles/{address}
	if len(parts) == 1 {
		s.handleGetProfile(w, r, parts[0])
		return
	}

	// GET /profiles/{address}/subscriptions
	if len(parts) == 2 && parts[1] == "subscriptions" {
		s.handleGetSubscriptions(w, r, parts[0])
		return
	}

	// GET /profiles/{address}/posts
	if len(parts) == 2 && parts[1] == "posts" {
		s.handleGetPosts(w, r, parts[0])
		return
	}

	s.sendError(w, http.StatusNotFound, "not_found", "Endpoint not found")
}

// handleStoryRoutes routes /stories/{id}.
func (s *Server) handleStoryRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/stories/")
	s.handleGetStory(w, r, id)
}

// handleContentRoutes routes /content/{id}/engagement and /content/{id}/comments.
func (s *Server) handleContentRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/content/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		s.sendError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	switch parts[1] {
	case "engagement":
		s.handleGetEngagement(w, r, parts[0])
	case "comments":
		s.handleGetComments(w, r, parts[0])
	default:
		s.sendError(w, http.StatusNotFound, "not_found", "Endpoint not found")
	}
}

// handleWriteRoutes routes /writes/{fingerprint} and its actions.
func (s *Server) handleWriteRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/writes/")
	parts := strings.Split(path, "/")

	// GET /writes/{fingerprint}
	if len(parts) == 1 && r.Method == http.MethodGet {
		s.handleGetWriteProgress(w, r, parts[0])
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "resume":
			s.handleResumeWrite(w, r, parts[0])
			return
		case "cancel":
			s.handleCancelWrite(w, r, parts[0])
			return
		}
	}

	s.sendError(w, http.StatusNotFound, "not_found", "Endpoint not found")
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("API server starting", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}
