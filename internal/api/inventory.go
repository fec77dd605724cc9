package api

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/ledger"
	"github.com/erazemk/najem/internal/model"
)

// InventoryHandler handles inventory and refill endpoints.
type InventoryHandler struct {
	Ledger *ledger.Service
}

type itemRequest struct {
	PortfolioID   *int64          `json:"portfolio_id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	DefaultMarkup decimal.Decimal `json:"default_markup"`
	Quantity      int             `json:"quantity"`
	MinQuantity   *int            `json:"min_quantity"`
}

func (req *itemRequest) input() ledger.ItemInput {
	return ledger.ItemInput{
		PortfolioID:   req.PortfolioID,
		Name:          req.Name,
		Category:      req.Category,
		CostPrice:     req.CostPrice,
		DefaultMarkup: req.DefaultMarkup,
		Quantity:      req.Quantity,
		MinQuantity:   req.MinQuantity,
	}
}

type refillRequest struct {
	InventoryID int64            `json:"inventory_id"`
	Quantity    int              `json:"quantity"`
	Cost        *decimal.Decimal `json:"cost"`
	Notes       string           `json:"notes"`
}

func (req *refillRequest) input() ledger.RefillInput {
	return ledger.RefillInput{
		InventoryID: req.InventoryID,
		Quantity:    req.Quantity,
		Cost:        req.Cost,
		Notes:       req.Notes,
	}
}

type batchRefillRequest struct {
	Entries []refillRequest `json:"entries"`
}

// List handles GET /api/inventory. Supports ?portfolio_id= and ?include_deleted=true.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := queryPortfolio(r)
	if err != nil {
		writeError(w, "", err)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	items, err := h.Ledger.ListItems(r.Context(), principal(r), portfolioID, includeDeleted)
	if err != nil {
		writeError(w, "failed to list inventory", err)
		return
	}
	if items == nil {
		items = []model.InventoryItem{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/inventory.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	item, err := h.Ledger.CreateItem(r.Context(), p, req.input())
	if err != nil {
		writeError(w, "failed to create inventory item", err)
		return
	}

	slog.Info("inventory item created", "user", p.Username, "item", item.Name, "quantity", item.Quantity)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/inventory/{id}.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	item, err := h.Ledger.GetItem(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, "failed to get inventory item", err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/inventory/{id}. Quantity only changes through
// refills and expenses.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	item, err := h.Ledger.UpdateItem(r.Context(), p, id, req.input())
	if err != nil {
		writeError(w, "failed to update inventory item", err)
		return
	}

	slog.Info("inventory item updated", "user", p.Username, "item", item.Name)
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/inventory/{id}.
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	if err := h.Ledger.DeleteItem(r.Context(), p, id); err != nil {
		writeError(w, "failed to delete inventory item", err)
		return
	}

	slog.Info("inventory item deleted", "user", p.Username, "item_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "inventory item deleted"})
}

// ShoppingList handles GET /api/inventory/shopping-list.
func (h *InventoryHandler) ShoppingList(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := queryPortfolio(r)
	if err != nil {
		writeError(w, "", err)
		return
	}

	entries, err := h.Ledger.ShoppingList(r.Context(), principal(r), portfolioID)
	if err != nil {
		writeError(w, "failed to build shopping list", err)
		return
	}
	if entries == nil {
		entries = []model.ShoppingListEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// Refills handles GET /api/inventory/{id}/refills.
func (h *InventoryHandler) Refills(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	refills, err := h.Ledger.Refills(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, "failed to list refills", err)
		return
	}
	if refills == nil {
		refills = []model.Refill{}
	}
	jsonResponse(w, http.StatusOK, refills)
}

// Refill handles POST /api/inventory/refill.
func (h *InventoryHandler) Refill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	item, err := h.Ledger.Refill(r.Context(), p, req.input())
	if err != nil {
		writeError(w, "failed to refill inventory", err)
		return
	}

	slog.Info("inventory refilled", "user", p.Username, "item", item.Name, "added", req.Quantity, "quantity", item.Quantity)
	jsonResponse(w, http.StatusOK, item)
}

// BatchRefill handles POST /api/inventory/batch-refill. Either every entry
// is applied or none is.
func (h *InventoryHandler) BatchRefill(w http.ResponseWriter, r *http.Request) {
	var req batchRefillRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entries := make([]ledger.RefillInput, len(req.Entries))
	for i := range req.Entries {
		entries[i] = req.Entries[i].input()
	}

	p := principal(r)
	items, err := h.Ledger.BatchRefill(r.Context(), p, entries)
	if err != nil {
		writeError(w, "failed to refill inventory", err)
		return
	}

	slog.Info("inventory batch refilled", "user", p.Username, "entries", len(items))
	jsonResponse(w, http.StatusOK, items)
}
