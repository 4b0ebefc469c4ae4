package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kasocial/internal/ledger"
	"kasocial/internal/models"
	"kasocial/internal/protocol"
	"kasocial/internal/reconstructor"
	"kasocial/internal/writer"
)

// handleIndex returns basic service information.
// GET / - Service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.sendError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	info := map[string]any{
		"service":     "kasocial",
		"version":     "1.0.0",
		"description": "Social protocol core over an append-only ledger",
		"endpoints": map[string]string{
			"GET /health":                     "Health check endpoint",
			"GET /metrics":                    "Prometheus metrics",
			"GET /profiles?addresses=a,b":     "Batch profile lookup (partial success)",
			"GET /profiles/{address}":         "Reconstructed profile",
			"GET /profiles/{address}/posts":   "The address's posts",
			"GET /profiles/{address}/subscriptions": "Deduplicated follow edges",
			"GET /feed":                       "Feed views (?view=&address=&types=&limit=&offset=&refresh=)",
			"GET /stories/{id}":               "Reassembled story by first-segment id",
			"GET /content/{id}/engagement":    "Like/comment counts (?author=)",
			"GET /content/{id}/comments":      "Comments on a content item (?author=)",
			"POST /writes":                    "Start or coalesce a segmented write",
			"GET /writes/{fingerprint}":       "Write progress",
			"POST /writes/{fingerprint}/resume": "Resume a failed write",
			"POST /writes/{fingerprint}/cancel": "Cancel a write",
		},
	}
	s.sendJSON(w, http.StatusOK, models.OK(info))
}

// handleHealth returns health status.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, models.OK(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "kasocial",
	}))
}

// handleMetrics returns Prometheus metrics.
// GET /metrics
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleGetProfile reconstructs one profile.
// GET /profiles/{address}
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request, address string) {
	if !protocol.ValidAddress(address) {
		s.sendError(w, http.StatusBadRequest, "bad_address", "Address does not match the ledger address grammar")
		return
	}

	profile, err := s.recon.BuildProfile(r.Context(), address)
	if err != nil {
		if errors.Is(err, reconstructor.ErrNotRegistered) {
			s.sendError(w, http.StatusNotFound, "not_registered", "Address has no registration message")
			return
		}
		slog.Error("Profile reconstruction failed", "address", address, "error", err)
		s.sendError(w, http.StatusBadGateway, "fetch_failed", "Ledger history could not be fetched")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(profile))
}

// handleProfileBatch reconstructs many profiles with partial success.
// GET /profiles?addresses=a,b,c
func (s *Server) handleProfileBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	raw := r.URL.Query().Get("addresses")
	if raw == "" {
		s.sendError(w, http.StatusBadRequest, "missing_addresses", "Query parameter 'addresses' is required")
		return
	}
	addresses := strings.Split(raw, ",")

	batch := s.recon.BuildProfiles(r.Context(), addresses)
	s.sendJSON(w, http.StatusOK, models.OK(batch))
}

// handleGetSubscriptions returns an address's deduplicated follow edges.
// GET /profiles/{address}/subscriptions
func (s *Server) handleGetSubscriptions(w http.ResponseWriter, r *http.Request, address string) {
	if !protocol.ValidAddress(address) {
		s.sendError(w, http.StatusBadRequest, "bad_address", "Address does not match the ledger address grammar")
		return
	}

	subs, err := s.recon.Subscriptions(r.Context(), address)
	if err != nil {
		slog.Error("Subscription scan failed", "address", address, "error", err)
		s.sendError(w, http.StatusBadGateway, "fetch_failed", "Ledger history could not be fetched")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(subs))
}

// handleGetPosts returns an address's posts.
// GET /profiles/{address}/posts?limit=20
func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request, address string) {
	if !protocol.ValidAddress(address) {
		s.sendError(w, http.StatusBadRequest, "bad_address", "Address does not match the ledger address grammar")
		return
	}

	limit := queryInt(r, "limit", 20, 100)
	posts, err := s.recon.Posts(r.Context(), address, limit)
	if err != nil {
		slog.Error("Post scan failed", "address", address, "error", err)
		s.sendError(w, http.StatusBadGateway, "fetch_failed", "Ledger history could not be fetched")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(posts))
}

// handleFeed builds one page of a feed view.
// GET /feed?view=global&address=...&types=post,story&limit=20&offset=0&refresh=true
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	req, err := feedRequestFromQuery(r)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	page, err := s.feeds.Feed(r.Context(), req)
	if err != nil {
		slog.Error("Feed build failed", "view", req.View, "error", err)
		s.sendError(w, http.StatusBadGateway, "fetch_failed", "Feed source could not be fetched")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(page))
}

// handleGetStory reassembles a story from its first segment's id.
// GET /stories/{id}
func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request, id string) {
	if !protocol.ValidTxID(id) {
		s.sendError(w, http.StatusBadRequest, "bad_tx_id", "Story id must be 64 lowercase hex chars")
		return
	}

	story, err := s.recon.BuildStory(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			s.sendError(w, http.StatusNotFound, "not_found", "No such transaction")
		case errors.Is(err, reconstructor.ErrNotStory):
			s.sendError(w, http.StatusNotFound, "not_story", "Transaction is not a story's first segment")
		default:
			slog.Error("Story reconstruction failed", "id", id, "error", err)
			s.sendError(w, http.StatusBadGateway, "fetch_failed", "Ledger history could not be fetched")
		}
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(story))
}

// handleGetEngagement counts likes and comments for a content item.
// GET /content/{id}/engagement?author=kaspa:...
func (s *Server) handleGetEngagement(w http.ResponseWriter, r *http.Request, id string) {
	author := r.URL.Query().Get("author")
	if !protocol.ValidTxID(id) || !protocol.ValidAddress(author) {
		s.sendError(w, http.StatusBadRequest, "bad_request", "Valid content id and author address are required")
		return
	}

	eng, err := s.recon.Engagement(r.Context(), author, id)
	if err != nil {
		slog.Error("Engagement scan failed", "id", id, "error", err)
		s.sendError(w, http.StatusBadGateway, "fetch_failed", "Ledger history could not be fetched")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(eng))
}

// handleGetComments lists comments on a content item.
// GET /content/{id}/comments?author=kaspa:...
func (s *Server) handleGetComments(w http.ResponseWriter, r *http.Request, id string) {
	author := r.URL.Query().Get("author")
	if !protocol.ValidTxID(id) || !protocol.ValidAddress(author) {
		s.sendError(w, http.StatusBadRequest, "bad_request", "Valid content id and author address are required")
		return
	}

	comments, err := s.recon.Comments(r.Context(), author, id)
	if err != nil {
		slog.Error("Comment scan failed", "id", id, "error", err)
		s.sendError(w, http.StatusBadGateway, "fetch_failed", "Ledger history could not be fetched")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(comments))
}

// createWriteRequest is the body of POST /writes.
type createWriteRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// handleCreateWrite starts (or coalesces onto) a segmented write.
// POST /writes
func (s *Server) handleCreateWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
		return
	}

	var req createWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "bad_body", "Request body must be JSON with author and content")
		return
	}
	if !protocol.ValidAddress(req.Author) {
		s.sendError(w, http.StatusBadRequest, "bad_address", "Author does not match the ledger address grammar")
		return
	}

	fingerprint, err := s.writes.Publish(req.Author, req.Content)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "bad_content", err.Error())
		return
	}

	progress, err := s.writes.Progress(r.Context(), fingerprint)
	if err != nil {
		slog.Error("Progress lookup failed after publish", "fingerprint", fingerprint, "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal", "Write started but progress is unavailable")
		return
	}
	s.sendJSON(w, http.StatusAccepted, models.OK(progress))
}

// handleGetWriteProgress returns the state of one write attempt.
// GET /writes/{fingerprint}
func (s *Server) handleGetWriteProgress(w http.ResponseWriter, r *http.Request, fingerprint string) {
	progress, err := s.writes.Progress(r.Context(), fingerprint)
	if err != nil {
		if errors.Is(err, writer.ErrUnknownWrite) {
			s.sendError(w, http.StatusNotFound, "not_found", "No such write attempt")
			return
		}
		s.sendError(w, http.StatusInternalServerError, "internal", "Progress lookup failed")
		return
	}
	s.sendJSON(w, http.StatusOK, models.OK(progress))
}

// handleResumeWrite resumes a failed write attempt.
// POST /writes/{fingerprint}/resume
func (s *Server) handleResumeWrite(w http.ResponseWriter, r *http.Request, fingerprint string) {
	err := s.writes.Resume(r.Context(), fingerprint)
	switch {
	case err == nil:
		progress, perr := s.writes.Progress(r.Context(), fingerprint)
		if perr != nil {
			s.sendError(w, http.StatusInternalServerError, "internal", "Resume started but progress is unavailable")
			return
		}
		s.sendJSON(w, http.StatusAccepted, models.OK(progress))
	case errors.Is(err, writer.ErrUnknownWrite):
		s.sendError(w, http.StatusNotFound, "not_found", "No such write attempt")
	case errors.Is(err, writer.ErrNotResumable):
		s.sendError(w, http.StatusConflict, "not_resumable", "Attempt is running, completed or cancelled")
	default:
		s.sendError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// handleCancelWrite cancels a write attempt. Published segments stay
// published; the ledger has no abort primitive.
// POST /writes/{fingerprint}/cancel
func (s *Server) handleCancelWrite(w http.ResponseWriter, r *http.Request, fingerprint string) {
	err := s.writes.Cancel(r.Context(), fingerprint)
	switch {
	case err == nil:
		progress, perr := s.writes.Progress(r.Context(), fingerprint)
		if perr != nil {
			s.sendError(w, http.StatusInternalServerError, "internal", "Cancelled but progress is unavailable")
			return
		}
		s.sendJSON(w, http.StatusOK, models.OK(progress))
	case errors.Is(err, writer.ErrUnknownWrite):
		s.sendError(w, http.StatusNotFound, "not_found", "No such write attempt")
	default:
		s.sendError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// queryInt parses a bounded positive integer query parameter.
func queryInt(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
