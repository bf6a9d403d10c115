package api

import (
	"log/slog"
	"net/http"

	"github.com/sgtlim/aether/internal/session"
)

// maxSearchQueryLength bounds the search query in bytes.
const maxSearchQueryLength = 1000

// searchHandler serves cross-session message search.
type searchHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// search handles GET /api/v1/search?browser_id=...&q=...&limit=20.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	owner, ok := browserID(w, r, h.logger)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query parameter 'q' is required", h.logger)
		return
	}
	if len(query) > maxSearchQueryLength {
		writeError(w, http.StatusBadRequest, "query_too_long", "query must be 1000 characters or fewer", h.logger)
		return
	}

	limit := min(intParam(r, "limit", 20), 100)

	results, err := h.store.SearchMessages(r.Context(), owner, query, limit)
	if err != nil {
		h.logger.Error("searching messages", "error", err, "browser_id", owner)
		writeError(w, http.StatusInternalServerError, "search_failed", "failed to search messages", h.logger)
		return
	}
	if results == nil {
		results = []*session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results}, h.logger)
}
