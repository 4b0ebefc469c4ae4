package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"kasocial/internal/models"
	"kasocial/internal/protocol"
)

// sendJSON writes an envelope with the given status code.
func (s *Server) sendJSON(w http.ResponseWriter, status int, env models.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// sendError writes a failed envelope with the given status code.
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.sendJSON(w, status, models.Fail(code, message))
}

// feedRequestFromQuery builds a FeedRequest from query parameters.
func feedRequestFromQuery(r *http.Request) (models.FeedRequest, error) {
	q := r.URL.Query()

	view := models.FeedView(q.Get("view"))
	if view == "" {
		view = models.ViewGlobal
	}
	switch view {
	case models.ViewPersonal, models.ViewGlobal, models.ViewUser, models.ViewTrending, models.ViewByType:
	default:
		return models.FeedRequest{}, fmt.Errorf("unknown view %q", view)
	}

	req := models.FeedRequest{
		View:    view,
		Address: q.Get("address"),
		Limit:   queryInt(r, "limit", 20, 100),
		Offset:  0,
		Refresh: q.Get("refresh") == "true",
	}

	if raw := q.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			req.Offset = v
		}
	}
	if raw := q.Get("since"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			req.Since = v
		}
	}

	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			switch kind := models.FeedItemKind(strings.TrimSpace(t)); kind {
			case models.FeedItemPost, models.FeedItemStory, models.FeedItemComment:
				req.Kinds = append(req.Kinds, kind)
			default:
				return models.FeedRequest{}, fmt.Errorf("unknown content type %q", t)
			}
		}
	}

	// Views anchored on an address need a legal one.
	if view == models.ViewPersonal || view == models.ViewUser {
		if !protocol.ValidAddress(req.Address) {
			return models.FeedRequest{}, fmt.Errorf("view %q requires a valid address", view)
		}
	}

	return req, nil
}
