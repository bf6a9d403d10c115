package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sgtlim/aether/internal/session"
)

// Listing bounds for session and message pagination.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// sessionHandler serves the session CRUD API. Every route requires a
// browser_id identifying the anonymous owner.
type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// sessionResponse is one session on the wire; Messages is present only
// on single-session reads.
type sessionResponse struct {
	*session.Session
	Messages []*session.Message `json:"messages,omitempty"`
}

// browserID extracts the owning browser id from the query string.
func browserID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	id := r.URL.Query().Get("browser_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "browser_id_required", "query parameter 'browser_id' is required", logger)
		return "", false
	}
	return id, true
}

// pathSessionID parses the {id} path segment.
func pathSessionID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// intParam parses an integer query parameter with a fallback.
func intParam(r *http.Request, name string, fallback int32) int32 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v < 0 {
		return fallback
	}
	return int32(v)
}

// list handles GET /api/v1/sessions?browser_id=...&limit=...&offset=...
// Sessions are returned without messages, most recently active first.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	owner, ok := browserID(w, r, h.logger)
	if !ok {
		return
	}

	limit := min(intParam(r, "limit", defaultListLimit), maxListLimit)
	offset := intParam(r, "offset", 0)

	sessions, err := h.store.Sessions(r.Context(), owner, limit, offset)
	if err != nil {
		h.logger.Error("listing sessions", "error", err, "browser_id", owner)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list sessions", h.logger)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}

	writeJSON(w, http.StatusOK, sessions, h.logger)
}

// createRequest is the POST /api/v1/sessions body.
type createRequest struct {
	BrowserID string `json:"browserId"`
	Title     string `json:"title"`
}

// create handles POST /api/v1/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}
	if req.BrowserID == "" {
		writeError(w, http.StatusBadRequest, "browser_id_required", "browserId is required", h.logger)
		return
	}

	sess, err := h.store.CreateSession(r.Context(), req.BrowserID, req.Title)
	if err != nil {
		h.logger.Error("creating session", "error", err, "browser_id", req.BrowserID)
		writeError(w, http.StatusInternalServerError, "create_failed", "failed to create session", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, sess, h.logger)
}

// get handles GET /api/v1/sessions/{id}?browser_id=... and includes the
// session's messages.
func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	owner, ok := browserID(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.Session(r.Context(), id, owner)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("getting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session", h.logger)
		return
	}

	messages, err := h.store.Messages(r.Context(), id, owner, maxListLimit, 0)
	if err != nil {
		h.logger.Error("getting session messages", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to get session messages", h.logger)
		return
	}
	if messages == nil {
		messages = []*session.Message{}
	}

	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Messages: messages}, h.logger)
}

// updateRequest is the PATCH body; absent fields stay untouched.
type updateRequest struct {
	BrowserID string  `json:"browserId"`
	Title     *string `json:"title"`
	Pinned    *bool   `json:"pinned"`
}

// update handles PATCH /api/v1/sessions/{id} for title and pin changes.
func (h *sessionHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}
	if req.BrowserID == "" {
		writeError(w, http.StatusBadRequest, "browser_id_required", "browserId is required", h.logger)
		return
	}
	if req.Title == nil && req.Pinned == nil {
		writeError(w, http.StatusBadRequest, "empty_update", "at least one of title or pinned is required", h.logger)
		return
	}
	if req.Title != nil && *req.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid_title", "title must not be empty", h.logger)
		return
	}

	sess, err := h.store.UpdateSession(r.Context(), id, req.BrowserID, session.Update{
		Title:  req.Title,
		Pinned: req.Pinned,
	})
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("updating session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "update_failed", "failed to update session", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, sess, h.logger)
}

// delete handles DELETE /api/v1/sessions/{id}?browser_id=...
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := browserID(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	err := h.store.DeleteSession(r.Context(), id, owner)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session_not_found", "session not found", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("deleting session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session", h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
