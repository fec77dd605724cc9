package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/najem/internal/imaging"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// PortfoliosHandler handles portfolio endpoints (administrator only).
type PortfoliosHandler struct {
	DB *sql.DB
}

type portfolioRequest struct {
	Name string `json:"name"`
}

// active loads a portfolio, writing a 404 if it is missing or deleted.
func (h *PortfoliosHandler) active(w http.ResponseWriter, r *http.Request, id int64) (*model.Portfolio, bool) {
	p, err := store.GetPortfolio(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, "failed to get portfolio", err)
		return nil, false
	}
	if p == nil || p.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "portfolio not found")
		return nil, false
	}
	return p, true
}

// List handles GET /api/portfolios.
func (h *PortfoliosHandler) List(w http.ResponseWriter, r *http.Request) {
	portfolios, err := store.ListPortfolios(r.Context(), h.DB)
	if err != nil {
		writeError(w, "failed to list portfolios", err)
		return
	}
	if portfolios == nil {
		portfolios = []model.Portfolio{}
	}
	jsonResponse(w, http.StatusOK, portfolios)
}

// Create handles POST /api/portfolios.
func (h *PortfoliosHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, "", model.Invalid("name", "is required"))
		return
	}

	p, err := store.CreatePortfolio(r.Context(), h.DB, name)
	if err != nil {
		writeError(w, "failed to create portfolio", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("portfolio created", "user", claims.Username, "portfolio", name)
	jsonResponse(w, http.StatusCreated, p)
}

// Get handles GET /api/portfolios/{id}.
func (h *PortfoliosHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if p, ok := h.active(w, r, id); ok {
		jsonResponse(w, http.StatusOK, p)
	}
}

// Update handles PUT /api/portfolios/{id}.
func (h *PortfoliosHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req portfolioRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, "", model.Invalid("name", "is required"))
		return
	}

	if _, ok := h.active(w, r, id); !ok {
		return
	}
	if err := store.UpdatePortfolio(r.Context(), h.DB, id, name); err != nil {
		writeError(w, "failed to update portfolio", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("portfolio updated", "user", claims.Username, "portfolio", name)
	if p, ok := h.active(w, r, id); ok {
		jsonResponse(w, http.StatusOK, p)
	}
}

// Delete handles DELETE /api/portfolios/{id}.
func (h *PortfoliosHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, ok := h.active(w, r, id)
	if !ok {
		return
	}

	if err := store.DeletePortfolio(r.Context(), h.DB, id); err != nil {
		writeError(w, "failed to delete portfolio", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("portfolio deleted", "user", claims.Username, "portfolio", p.Name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "portfolio deleted"})
}

// UploadLogo handles PUT /api/portfolios/{id}/logo. The image is downscaled
// and re-encoded before it is stored.
func (h *PortfoliosHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, ok := h.active(w, r, id); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUpload)

	if err := r.ParseMultipartForm(imaging.MaxUpload); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("logo")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "logo file required")
		return
	}
	defer file.Close()

	logo, err := imaging.ProcessLogo(file)
	if err != nil {
		writeError(w, "failed to process logo", err)
		return
	}

	if err := store.SetPortfolioLogo(r.Context(), h.DB, id, logo.Data, logo.MIME); err != nil {
		writeError(w, "failed to save logo", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("portfolio logo uploaded", "user", claims.Username, "portfolio_id", id,
		"width", logo.Width, "height", logo.Height)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logo uploaded"})
}

// GetLogo handles GET /api/portfolios/{id}/logo.
func (h *PortfoliosHandler) GetLogo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	data, mime, err := store.GetPortfolioLogo(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, "failed to get logo", err)
		return
	}
	if len(data) == 0 {
		jsonError(w, http.StatusNotFound, "no logo")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
