package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// ActivityHandler serves the audit log.
type ActivityHandler struct {
	DB *sql.DB
}

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// List handles GET /api/activity. Supports ?portfolio_id=, ?action= and ?limit=.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	requested, err := queryPortfolio(r)
	if err != nil {
		writeError(w, "", err)
		return
	}
	scope, err := access.Scope(principal(r), requested)
	if err != nil {
		writeError(w, "", err)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, "", err)
		return
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	limit = min(limit, maxActivityLimit)

	entries, err := store.ListActivity(r.Context(), h.DB, scope, r.URL.Query().Get("action"), int(limit))
	if err != nil {
		writeError(w, "failed to list activity", err)
		return
	}
	if entries == nil {
		entries = []model.ActivityLog{}
	}
	jsonResponse(w, http.StatusOK, entries)
}
