package ledger

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/db"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

type env struct {
	db        *sql.DB
	svc       *Service
	portfolio *model.Portfolio
	listing   *model.Listing
	admin     access.Principal
	user      access.Principal
}

func setup(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	portfolio, _ := store.CreatePortfolio(ctx, database, "Coast")
	owner, _ := store.CreateOwner(ctx, database, portfolio.ID, "Acme", "acme@example.com", "")
	listing, err := store.CreateListing(ctx, database, owner.ID, "Unit 1", "")
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	admin, err := store.CreateUser(ctx, database, "admin", "hash", model.RoleAdministrator, nil)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	return &env{
		db:        database,
		svc:       New(database),
		portfolio: portfolio,
		listing:   listing,
		admin:     access.Principal{UserID: admin.ID, Username: "admin", Role: model.RoleAdministrator},
		user:      access.Principal{Username: "staff", Role: model.RoleStandardUser, PortfolioID: &portfolio.ID},
	}
}

func (e *env) item(t *testing.T, name string, quantity, minQuantity int) *model.InventoryItem {
	t.Helper()
	item, err := e.svc.CreateItem(context.Background(), e.user, ItemInput{
		Name:          name,
		CostPrice:     decimal.RequireFromString("2.00"),
		DefaultMarkup: decimal.NewFromInt(15),
		Quantity:      quantity,
		MinQuantity:   &minQuantity,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func (e *env) quantity(t *testing.T, id int64) int {
	t.Helper()
	item, err := store.GetInventoryItem(context.Background(), e.db, id)
	if err != nil || item == nil {
		t.Fatalf("GetInventoryItem %d: %v", id, err)
	}
	return item.Quantity
}

func (e *env) count(t *testing.T, action string) int {
	t.Helper()
	entries, err := store.ListActivity(context.Background(), e.db, nil, action, 0)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	return len(entries)
}

func (e *env) expense(t *testing.T, itemID int64, used int) *model.Expense {
	t.Helper()
	expense, err := e.svc.CreateExpense(context.Background(), e.user, ExpenseInput{
		ListingID:     e.listing.ID,
		InventoryID:   &itemID,
		QuantityUsed:  &used,
		TotalCost:     decimal.NewFromInt(int64(used) * 2),
		MarkupPercent: decimal.NewFromInt(15),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	return expense
}

func ptr[T any](v T) *T { return &v }

func TestCreateThenDeleteRestoresQuantity(t *testing.T) {
	e := setup(t)
	item := e.item(t, "Soap", 30, 10)

	expense := e.expense(t, item.ID, 7)
	if got := e.quantity(t, item.ID); got != 23 {
		t.Errorf("expected 23 after expense, got %d", got)
	}

	if err := e.svc.DeleteExpense(context.Background(), e.user, expense.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if got := e.quantity(t, item.ID); got != 30 {
		t.Errorf("expected 30 after delete, got %d", got)
	}
	if n := e.count(t, model.ActionInventoryRestored); n != 1 {
		t.Errorf("expected 1 INVENTORY_RESTORED, got %d", n)
	}
}

func TestUpdateQuantityAppliesDelta(t *testing.T) {
	e := setup(t)
	item := e.item(t, "Soap", 50, 10)
	expense := e.expense(t, item.ID, 5)

	_, err := e.svc.UpdateExpense(context.Background(), e.user, expense.ID, ExpensePatch{QuantityUsed: ptr(3)})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if got := e.quantity(t, item.ID); got != 47 {
		t.Errorf("expected 50-5+2 = 47, got %d", got)
	}

	_, err = e.svc.UpdateExpense(context.Background(), e.user, expense.ID, ExpensePatch{QuantityUsed: ptr(8)})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if got := e.quantity(t, item.ID); got != 42 {
		t.Errorf("expected 47-5 = 42, got %d", got)
	}
	if n := e.count(t, model.ActionInventoryAdjusted); n != 2 {
		t.Errorf("expected 2 INVENTORY_ADJUSTED, got %d", n)
	}
}

func TestUpdateReassignsItem(t *testing.T) {
	e := setup(t)
	a := e.item(t, "Towels", 40, 10)
	b := e.item(t, "Sheets", 40, 10)
	expense := e.expense(t, a.ID, 4)

	updated, err := e.svc.UpdateExpense(context.Background(), e.user, expense.ID, ExpensePatch{
		InventoryID:  &b.ID,
		QuantityUsed: ptr(6),
	})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if got := e.quantity(t, a.ID); got != 40 {
		t.Errorf("expected A restored to 40, got %d", got)
	}
	if got := e.quantity(t, b.ID); got != 34 {
		t.Errorf("expected B at 34, got %d", got)
	}
	if updated.InventoryID == nil || *updated.InventoryID != b.ID || updated.InventoryName != "Sheets" {
		t.Errorf("expected expense to reference Sheets, got %+v", updated)
	}
}

func TestUpdateWithoutInventoryChangeLeavesStock(t *testing.T) {
	e := setup(t)
	item := e.item(t, "Soap", 30, 10)
	expense := e.expense(t, item.ID, 5)

	updated, err := e.svc.UpdateExpense(context.Background(), e.user, expense.ID, ExpensePatch{
		TotalCost: ptr(decimal.NewFromInt(100)),
		Notes:     ptr("repriced"),
	})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if got := e.quantity(t, item.ID); got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
	if !updated.BilledAmount.Equal(decimal.NewFromInt(115)) {
		t.Errorf("expected billed recomputed to 115, got %s", updated.BilledAmount)
	}
}

func TestLowStockAlertOncePerOperation(t *testing.T) {
	e := setup(t)
	a := e.item(t, "Towels", 12, 10)
	b := e.item(t, "Sheets", 11, 10)

	expense := e.expense(t, a.ID, 3) // 9 <= 10
	if n := e.count(t, model.ActionLowInventoryAlert); n != 1 {
		t.Fatalf("expected 1 alert after create, got %d", n)
	}

	// Restore to A (back to 12), deduct from B (to 6): one alert.
	_, err := e.svc.UpdateExpense(context.Background(), e.user, expense.ID, ExpensePatch{
		InventoryID:  &b.ID,
		QuantityUsed: ptr(5),
	})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if n := e.count(t, model.ActionLowInventoryAlert); n != 2 {
		t.Errorf("expected 2 alerts after reassignment, got %d", n)
	}

	// Returning stock never alerts, even when still low.
	_, err = e.svc.UpdateExpense(context.Background(), e.user, expense.ID, ExpensePatch{QuantityUsed: ptr(4)})
	if err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	if n := e.count(t, model.ActionLowInventoryAlert); n != 2 {
		t.Errorf("expected no alert when returning stock, got %d", n)
	}
}

func TestTowelsScenario(t *testing.T) {
	e := setup(t)
	towels := e.item(t, "Towels", 20, 10)

	expense, err := e.svc.CreateExpense(context.Background(), e.user, ExpenseInput{
		ListingID:     e.listing.ID,
		InventoryID:   &towels.ID,
		QuantityUsed:  ptr(12),
		TotalCost:     decimal.RequireFromString("24.00"),
		MarkupPercent: decimal.NewFromInt(15),
		BilledAmount:  ptr(decimal.RequireFromString("27.60")),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if got := e.quantity(t, towels.ID); got != 8 {
		t.Errorf("expected 8 towels, got %d", got)
	}
	if n := e.count(t, model.ActionLowInventoryAlert); n != 1 {
		t.Errorf("expected 1 alert, got %d", n)
	}
	if expense.OwnerID != e.listing.OwnerID {
		t.Errorf("expected owner derived from listing")
	}

	if err := e.svc.DeleteExpense(context.Background(), e.user, expense.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if got := e.quantity(t, towels.ID); got != 20 {
		t.Errorf("expected 20 towels, got %d", got)
	}
	if n := e.count(t, model.ActionLowInventoryAlert); n != 1 {
		t.Errorf("expected no alert on delete, got %d total", n)
	}
}

func TestBilledAmountClientTrusted(t *testing.T) {
	e := setup(t)

	trusted, err := e.svc.CreateExpense(context.Background(), e.user, ExpenseInput{
		ListingID:     e.listing.ID,
		TotalCost:     decimal.NewFromInt(10),
		MarkupPercent: decimal.NewFromInt(10),
		BilledAmount:  ptr(decimal.NewFromInt(50)),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if !trusted.BilledAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected client billed amount kept, got %s", trusted.BilledAmount)
	}

	computed, _ := e.svc.CreateExpense(context.Background(), e.user, ExpenseInput{
		ListingID:     e.listing.ID,
		TotalCost:     decimal.RequireFromString("19.99"),
		MarkupPercent: decimal.NewFromInt(15),
	})
	if !computed.BilledAmount.Equal(decimal.RequireFromString("22.99")) {
		t.Errorf("expected 22.99, got %s", computed.BilledAmount)
	}
}

func TestExpenseValidation(t *testing.T) {
	e := setup(t)

	_, err := e.svc.CreateExpense(context.Background(), e.user, ExpenseInput{
		TotalCost:   decimal.NewFromInt(-1),
		InventoryID: ptr(int64(1)),
	})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Errorf("expected 3 field errors, got %+v", verr.Fields)
	}

	_, err = e.svc.CreateExpense(context.Background(), e.user, ExpenseInput{ListingID: 999})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found for missing listing, got %v", err)
	}

	err = e.svc.DeleteExpense(context.Background(), e.user, 999)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found deleting missing expense, got %v", err)
	}
}

func TestExpenseCrossPortfolioForbidden(t *testing.T) {
	e := setup(t)
	item := e.item(t, "Soap", 30, 10)
	expense := e.expense(t, item.ID, 2)

	other, _ := store.CreatePortfolio(context.Background(), e.db, "City")
	outsider := access.Principal{Username: "outsider", Role: model.RoleStandardAdmin, PortfolioID: &other.ID}

	_, err := e.svc.UpdateExpense(context.Background(), outsider, expense.ID, ExpensePatch{QuantityUsed: ptr(1)})
	if !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden update, got %v", err)
	}
	if err := e.svc.DeleteExpense(context.Background(), outsider, expense.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden delete, got %v", err)
	}
	_, err = e.svc.CreateExpense(context.Background(), outsider, ExpenseInput{ListingID: e.listing.ID})
	if !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected forbidden create, got %v", err)
	}

	if got := e.quantity(t, item.ID); got != 28 {
		t.Errorf("expected stock untouched at 28, got %d", got)
	}

	// Administrators cross portfolios.
	if err := e.svc.DeleteExpense(context.Background(), e.admin, expense.ID); err != nil {
		t.Errorf("expected administrator delete to succeed, got %v", err)
	}
}

func TestRestoreSkippedForDeletedItem(t *testing.T) {
	e := setup(t)
	item := e.item(t, "Soap", 30, 10)
	expense := e.expense(t, item.ID, 5)

	if err := e.svc.DeleteItem(context.Background(), e.user, item.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if err := e.svc.DeleteExpense(context.Background(), e.user, expense.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if got := e.quantity(t, item.ID); got != 25 {
		t.Errorf("expected deleted item untouched at 25, got %d", got)
	}
	if n := e.count(t, model.ActionExpenseDeleted); n != 1 {
		t.Errorf("expected expense deleted anyway, got %d entries", n)
	}
}

func TestFailedCreateRollsBack(t *testing.T) {
	e := setup(t)
	item := e.item(t, "Soap", 30, 10)

	other, _ := store.CreatePortfolio(context.Background(), e.db, "City")
	foreign, _ := e.svc.CreateItem(context.Background(), e.admin, ItemInput{PortfolioID: &other.ID, Name: "Foreign", Quantity: 5})

	_, err := e.svc.CreateExpense(context.Background(), e.admin, ExpenseInput{
		ListingID:    e.listing.ID,
		InventoryID:  &foreign.ID,
		QuantityUsed: ptr(1),
	})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for foreign item, got %v", err)
	}

	expenses, _ := e.svc.ListExpenses(context.Background(), e.admin, ExpenseQuery{})
	if len(expenses) != 0 {
		t.Errorf("expected no expenses, got %d", len(expenses))
	}
	if got := e.quantity(t, item.ID); got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
}

func TestMovingExpenseRevalidatesItem(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	item := e.item(t, "Soap", 30, 10)

	expense, err := e.svc.CreateExpense(ctx, e.admin, ExpenseInput{
		ListingID:    e.listing.ID,
		InventoryID:  &item.ID,
		QuantityUsed: ptr(2),
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	other, _ := store.CreatePortfolio(ctx, e.db, "City")
	owner, _ := store.CreateOwner(ctx, e.db, other.ID, "Bora", "bora@example.com", "")
	elsewhere, err := store.CreateListing(ctx, e.db, owner.ID, "Flat 2", "")
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	for _, patch := range []ExpensePatch{
		{ListingID: &elsewhere.ID},
		{ListingID: &elsewhere.ID, QuantityUsed: ptr(5)},
	} {
		_, err := e.svc.UpdateExpense(ctx, e.admin, expense.ID, patch)
		var verr *model.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error moving item across portfolios, got %v", err)
		}
	}

	if got := e.quantity(t, item.ID); got != 28 {
		t.Errorf("expected 28, got %d", got)
	}
	stored, _ := store.GetExpense(ctx, e.db, expense.ID)
	if stored.ListingID != e.listing.ID || stored.PortfolioID != e.portfolio.ID {
		t.Errorf("expected expense to stay on listing %d, got %+v", e.listing.ID, stored)
	}
}

func TestListExpensesByMonth(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	for _, d := range []string{"2024-02-29T23:00:00Z", "2024-03-01T00:00:00Z", "2024-03-31T23:59:59Z", "2024-04-01T00:00:00Z"} {
		date, _ := time.Parse(time.RFC3339, d)
		e.svc.CreateExpense(ctx, e.user, ExpenseInput{ListingID: e.listing.ID, TotalCost: decimal.NewFromInt(1), Date: &date})
	}

	march, err := e.svc.ListExpenses(ctx, e.user, ExpenseQuery{Month: 3, Year: 2024})
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(march) != 2 {
		t.Errorf("expected 2 March expenses, got %d", len(march))
	}

	_, err = e.svc.ListExpenses(ctx, e.user, ExpenseQuery{Month: 13, Year: 2024})
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected validation error for month 13, got %v", err)
	}
}
