package api

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/ledger"
	"github.com/erazemk/najem/internal/model"
)

// ExpensesHandler handles expense endpoints. Every mutation reconciles
// inventory in the same transaction.
type ExpensesHandler struct {
	Ledger *ledger.Service
}

type createExpenseRequest struct {
	ListingID     int64            `json:"listing_id"`
	InventoryID   *int64           `json:"inventory_id"`
	QuantityUsed  *int             `json:"quantity_used"`
	TotalCost     decimal.Decimal  `json:"total_cost"`
	MarkupPercent decimal.Decimal  `json:"markup_percent"`
	BilledAmount  *decimal.Decimal `json:"billed_amount"`
	Notes         string           `json:"notes"`
	Date          *date            `json:"date"`
}

type updateExpenseRequest struct {
	ListingID     *int64           `json:"listing_id"`
	InventoryID   *int64           `json:"inventory_id"`
	QuantityUsed  *int             `json:"quantity_used"`
	TotalCost     *decimal.Decimal `json:"total_cost"`
	MarkupPercent *decimal.Decimal `json:"markup_percent"`
	BilledAmount  *decimal.Decimal `json:"billed_amount"`
	Notes         *string          `json:"notes"`
	Date          *date            `json:"date"`
}

// List handles GET /api/expenses. Supports ?portfolio_id=, ?owner_id=,
// ?listing_id=, ?month= and ?year=.
func (h *ExpensesHandler) List(w http.ResponseWriter, r *http.Request) {
	var query ledger.ExpenseQuery
	var err error
	if query.PortfolioID, err = queryPortfolio(r); err != nil {
		writeError(w, "", err)
		return
	}
	ints := []struct {
		name string
		dst  *int64
	}{
		{"owner_id", &query.OwnerID},
		{"listing_id", &query.ListingID},
	}
	for _, q := range ints {
		if *q.dst, err = queryInt(r, q.name); err != nil {
			writeError(w, "", err)
			return
		}
	}
	month, err := queryInt(r, "month")
	if err != nil {
		writeError(w, "", err)
		return
	}
	year, err := queryInt(r, "year")
	if err != nil {
		writeError(w, "", err)
		return
	}
	query.Month, query.Year = int(month), int(year)

	expenses, err := h.Ledger.ListExpenses(r.Context(), principal(r), query)
	if err != nil {
		writeError(w, "failed to list expenses", err)
		return
	}
	if expenses == nil {
		expenses = []model.Expense{}
	}
	jsonResponse(w, http.StatusOK, expenses)
}

// Create handles POST /api/expenses.
func (h *ExpensesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	expense, err := h.Ledger.CreateExpense(r.Context(), p, ledger.ExpenseInput{
		ListingID:     req.ListingID,
		InventoryID:   req.InventoryID,
		QuantityUsed:  req.QuantityUsed,
		TotalCost:     req.TotalCost,
		MarkupPercent: req.MarkupPercent,
		BilledAmount:  req.BilledAmount,
		Notes:         req.Notes,
		Date:          req.Date.timePtr(),
	})
	if err != nil {
		writeError(w, "failed to create expense", err)
		return
	}

	slog.Info("expense created", "user", p.Username, "expense_id", expense.ID,
		"listing", expense.ListingName, "billed", expense.BilledAmount.StringFixed(2))
	jsonResponse(w, http.StatusCreated, expense)
}

// Get handles GET /api/expenses/{id}.
func (h *ExpensesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	expense, err := h.Ledger.GetExpense(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, "failed to get expense", err)
		return
	}
	jsonResponse(w, http.StatusOK, expense)
}

// Update handles PUT /api/expenses/{id}. Omitted fields keep their value.
func (h *ExpensesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req updateExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := principal(r)
	expense, err := h.Ledger.UpdateExpense(r.Context(), p, id, ledger.ExpensePatch{
		ListingID:     req.ListingID,
		InventoryID:   req.InventoryID,
		QuantityUsed:  req.QuantityUsed,
		TotalCost:     req.TotalCost,
		MarkupPercent: req.MarkupPercent,
		BilledAmount:  req.BilledAmount,
		Notes:         req.Notes,
		Date:          req.Date.timePtr(),
	})
	if err != nil {
		writeError(w, "failed to update expense", err)
		return
	}

	slog.Info("expense updated", "user", p.Username, "expense_id", expense.ID)
	jsonResponse(w, http.StatusOK, expense)
}

// Delete handles DELETE /api/expenses/{id}.
func (h *ExpensesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	if err := h.Ledger.DeleteExpense(r.Context(), p, id); err != nil {
		writeError(w, "failed to delete expense", err)
		return
	}

	slog.Info("expense deleted", "user", p.Username, "expense_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "expense deleted"})
}
