package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/report"
)

// ReportsHandler handles report batches, downloads and email distribution.
type ReportsHandler struct {
	Reports *report.Service
}

type generateRequest struct {
	PortfolioID *int64  `json:"portfolio_id"`
	Month       int     `json:"month"`
	Year        int     `json:"year"`
	OwnerIDs    []int64 `json:"owner_ids"`
	Title       string  `json:"title"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// serveFile streams a rendered file as an attachment.
func serveFile(w http.ResponseWriter, r *http.Request, f *report.File, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Filename+`"`)
	http.ServeFile(w, r, f.Path)
}

// List handles GET /api/reports. Returns batches, newest first.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := queryPortfolio(r)
	if err != nil {
		writeError(w, "", err)
		return
	}

	batches, err := h.Reports.ListBatches(r.Context(), principal(r), portfolioID)
	if err != nil {
		writeError(w, "failed to list reports", err)
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	jsonResponse(w, http.StatusOK, batches)
}

// Generate handles POST /api/reports/generate.
func (h *ReportsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	detail, err := h.Reports.GenerateBatch(r.Context(), p, report.GenerateInput{
		PortfolioID: req.PortfolioID,
		Month:       req.Month,
		Year:        req.Year,
		OwnerIDs:    req.OwnerIDs,
		Title:       req.Title,
	})
	if err != nil {
		writeError(w, "failed to generate reports", err)
		return
	}

	if skipped := len(req.OwnerIDs) - len(detail.Reports); skipped > 0 {
		slog.Warn("owners skipped in report batch", "user", p.Username, "batch", detail.Batch.ID, "skipped", skipped)
	}
	jsonResponse(w, http.StatusCreated, detail)
}

// Download handles GET /api/reports/{id}/download.
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	f, err := h.Reports.Download(r.Context(), p, id)
	if err != nil {
		writeError(w, "failed to download report", err)
		return
	}

	slog.Info("report downloaded", "user", p.Username, "report_id", id)
	serveFile(w, r, f, "application/pdf")
}

// Delete handles DELETE /api/reports/{id}.
func (h *ReportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	if err := h.Reports.DeleteReport(r.Context(), p, id); err != nil {
		writeError(w, "failed to delete report", err)
		return
	}

	slog.Info("report deleted", "user", p.Username, "report_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "report deleted"})
}

// Email handles POST /api/reports/{id}/email.
func (h *ReportsHandler) Email(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	rep, err := h.Reports.EmailReport(r.Context(), p, id)
	if err != nil {
		writeError(w, "failed to email report", err)
		return
	}

	slog.Info("report emailed", "user", p.Username, "report_id", id, "to", rep.OwnerEmail)
	jsonResponse(w, http.StatusOK, rep)
}

// GetByPath routes GET /api/reports/{id}/download and
// GET /api/reports/batch/{batchId}.
func (h *ReportsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.PathValue("id") == "batch":
		r.SetPathValue("batchId", r.PathValue("action"))
		h.GetBatch(w, r)
	case r.PathValue("action") == "download":
		h.Download(w, r)
	default:
		jsonError(w, http.StatusNotFound, "not found")
	}
}

// GetBatch handles GET /api/reports/batch/{batchId}.
func (h *ReportsHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Reports.GetBatch(r.Context(), principal(r), r.PathValue("batchId"))
	if err != nil {
		writeError(w, "failed to get batch", err)
		return
	}
	jsonResponse(w, http.StatusOK, detail)
}

// GetNotes handles GET /api/reports/batch/{batchId}/notes.
func (h *ReportsHandler) GetNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Reports.BatchNotes(r.Context(), principal(r), r.PathValue("batchId"))
	if err != nil {
		writeError(w, "failed to get batch notes", err)
		return
	}
	jsonResponse(w, http.StatusOK, notesRequest{Notes: notes})
}

// UpdateNotes handles PUT /api/reports/batch/{batchId}/notes.
func (h *ReportsHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	batchID := r.PathValue("batchId")
	if err := h.Reports.UpdateBatchNotes(r.Context(), p, batchID, req.Notes); err != nil {
		writeError(w, "failed to update batch notes", err)
		return
	}

	slog.Info("batch notes updated", "user", p.Username, "batch_id", batchID)
	jsonResponse(w, http.StatusOK, req)
}

// DownloadBatch handles GET /api/reports/batch/{batchId}/download. The ZIP
// is removed by the cleaner once it has been served.
func (h *ReportsHandler) DownloadBatch(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	batchID := r.PathValue("batchId")
	archive, err := h.Reports.BatchArchive(r.Context(), p, batchID)
	if err != nil {
		writeError(w, "failed to build batch archive", err)
		return
	}
	defer h.Reports.Cleaner.Schedule(archive.Path)

	slog.Info("batch downloaded", "user", p.Username, "batch_id", batchID,
		"included", archive.Included, "skipped", archive.Skipped)
	w.Header().Set("X-Reports-Included", strconv.Itoa(archive.Included))
	w.Header().Set("X-Reports-Skipped", strconv.Itoa(archive.Skipped))
	serveFile(w, r, &archive.File, "application/zip")
}

// EmailBatch handles POST /api/reports/batch/{batchId}/email. Per-report
// failures are reported in the body; the request itself succeeds.
func (h *ReportsHandler) EmailBatch(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	batchID := r.PathValue("batchId")
	summary, err := h.Reports.EmailBatch(r.Context(), p, batchID)
	if err != nil {
		writeError(w, "failed to email batch", err)
		return
	}

	slog.Info("batch emailed", "user", p.Username, "batch_id", batchID,
		"sent", summary.Sent, "failed", summary.Failed)
	jsonResponse(w, http.StatusOK, summary)
}

// DeleteBatch handles DELETE /api/reports/batch/{batchId}.
func (h *ReportsHandler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	batchID := r.PathValue("batchId")
	if err := h.Reports.DeleteBatch(r.Context(), p, batchID); err != nil {
		writeError(w, "failed to delete batch", err)
		return
	}

	slog.Info("batch deleted", "user", p.Username, "batch_id", batchID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "batch deleted"})
}
