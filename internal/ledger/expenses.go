package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// ExpenseInput is the payload for creating an expense.
type ExpenseInput struct {
	ListingID     int64
	InventoryID   *int64
	QuantityUsed  *int
	TotalCost     decimal.Decimal
	MarkupPercent decimal.Decimal
	BilledAmount  *decimal.Decimal
	Notes         string
	Date          *time.Time
}

// ExpensePatch is the payload for updating an expense. Nil fields keep their
// current value.
type ExpensePatch struct {
	ListingID     *int64
	InventoryID   *int64
	QuantityUsed  *int
	TotalCost     *decimal.Decimal
	MarkupPercent *decimal.Decimal
	BilledAmount  *decimal.Decimal
	Notes         *string
	Date          *time.Time
}

// ExpenseQuery filters ListExpenses. Month requires Year.
type ExpenseQuery struct {
	PortfolioID *int64
	OwnerID     int64
	ListingID   int64
	Month       int
	Year        int
}

func validateAmounts(verr *model.ValidationError, totalCost, markup decimal.Decimal, billed *decimal.Decimal, quantity *int) {
	if totalCost.IsNegative() {
		verr.Add("total_cost", "must not be negative")
	}
	if markup.IsNegative() {
		verr.Add("markup_percent", "must not be negative")
	}
	if billed != nil && billed.IsNegative() {
		verr.Add("billed_amount", "must not be negative")
	}
	if quantity != nil && *quantity < 0 {
		verr.Add("quantity_used", "must not be negative")
	}
}

func (in *ExpenseInput) validate() error {
	verr := &model.ValidationError{}
	if in.ListingID <= 0 {
		verr.Add("listing_id", "is required")
	}
	if in.InventoryID != nil && in.QuantityUsed == nil {
		verr.Add("quantity_used", "is required with inventory_id")
	}
	validateAmounts(verr, in.TotalCost, in.MarkupPercent, in.BilledAmount, in.QuantityUsed)
	return verr.Err()
}

func (in *ExpensePatch) validate() error {
	verr := &model.ValidationError{}
	if in.ListingID != nil && *in.ListingID <= 0 {
		verr.Add("listing_id", "must be a valid listing")
	}
	var cost, markup decimal.Decimal
	if in.TotalCost != nil {
		cost = *in.TotalCost
	}
	if in.MarkupPercent != nil {
		markup = *in.MarkupPercent
	}
	validateAmounts(verr, cost, markup, in.BilledAmount, in.QuantityUsed)
	return verr.Err()
}

// loadListing returns an active listing the principal may write to.
func loadListing(ctx context.Context, q store.Querier, p access.Principal, id int64) (*model.Listing, error) {
	listing, err := store.GetListing(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if listing == nil || listing.DeletedAt != nil {
		return nil, fmt.Errorf("listing %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, listing.PortfolioID); err != nil {
		return nil, err
	}
	return listing, nil
}

// loadStockItem returns an active item from the listing's portfolio.
func loadStockItem(ctx context.Context, q store.Querier, id, portfolioID int64) (*model.InventoryItem, error) {
	item, err := store.GetInventoryItem(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Deleted {
		return nil, fmt.Errorf("inventory item %d: %w", id, model.ErrNotFound)
	}
	if item.PortfolioID != portfolioID {
		return nil, model.Invalid("inventory_id", "belongs to a different portfolio than the listing")
	}
	return item, nil
}

// CreateExpense records an expense against a listing and deducts any used
// inventory. Quantity is not floored: stock may go negative.
func (s *Service) CreateExpense(ctx context.Context, p access.Principal, in ExpenseInput) (*model.Expense, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var expense *model.Expense
	err := store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		listing, err := loadListing(ctx, tx, p, in.ListingID)
		if err != nil {
			return err
		}

		var item *model.InventoryItem
		if in.InventoryID != nil {
			if item, err = loadStockItem(ctx, tx, *in.InventoryID, listing.PortfolioID); err != nil {
				return err
			}
		}

		fields := store.ExpenseFields{
			PortfolioID:   listing.PortfolioID,
			ListingID:     listing.ID,
			OwnerID:       listing.OwnerID,
			InventoryID:   in.InventoryID,
			QuantityUsed:  in.QuantityUsed,
			TotalCost:     in.TotalCost,
			MarkupPercent: in.MarkupPercent,
			Notes:         in.Notes,
			Date:          s.now(),
		}
		if in.Date != nil {
			fields.Date = *in.Date
		}
		if in.BilledAmount != nil {
			fields.BilledAmount = *in.BilledAmount
		} else {
			fields.BilledAmount = model.BilledFor(in.TotalCost, in.MarkupPercent)
		}

		if expense, err = store.CreateExpense(ctx, tx, fields); err != nil {
			return err
		}

		if item != nil {
			updated, err := store.AdjustQuantity(ctx, tx, item.ID, -*in.QuantityUsed)
			if err != nil {
				return err
			}
			if err := alertIfLow(ctx, tx, p, updated); err != nil {
				return err
			}
		}

		return audit(ctx, tx, p, listing.PortfolioID, model.ActionExpenseCreated,
			"Expense #%d for %s (%s): billed %s", expense.ID, listing.Name, listing.OwnerName, expense.BilledAmount.StringFixed(2))
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// GetExpense returns an expense the principal may read.
func (s *Service) GetExpense(ctx context.Context, p access.Principal, id int64) (*model.Expense, error) {
	expense, err := store.GetExpense(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, fmt.Errorf("expense %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, expense.PortfolioID); err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns expenses visible to the principal.
func (s *Service) ListExpenses(ctx context.Context, p access.Principal, query ExpenseQuery) ([]model.Expense, error) {
	scope, err := access.Scope(p, query.PortfolioID)
	if err != nil {
		return nil, err
	}

	filter := store.ExpenseFilter{
		PortfolioID: scope,
		OwnerID:     query.OwnerID,
		ListingID:   query.ListingID,
	}
	switch {
	case query.Month != 0:
		if err := ValidPeriod(query.Month, query.Year); err != nil {
			return nil, err
		}
		filter.From, filter.To = MonthRange(query.Year, query.Month)
	case query.Year != 0:
		if err := ValidPeriod(1, query.Year); err != nil {
			return nil, err
		}
		filter.From = time.Date(query.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		filter.To = filter.From.AddDate(1, 0, 0)
	}

	return store.ListExpenses(ctx, s.DB, filter)
}

// UpdateExpense applies patch to an expense and reconciles inventory. Exactly
// one of three cases applies:
//
//  1. the item changed: the old quantity goes back to the old item and the
//     new quantity comes out of the new item;
//  2. the item is the same but the quantity changed: only the difference is
//     applied;
//  3. otherwise inventory is untouched.
//
// A missing or deleted old item is skipped with a warning and the expense is
// still updated.
func (s *Service) UpdateExpense(ctx context.Context, p access.Principal, id int64, patch ExpensePatch) (*model.Expense, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	var expense *model.Expense
	err := store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		old, err := store.GetExpense(ctx, tx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("expense %d: %w", id, model.ErrNotFound)
		}
		if err := access.Check(p, old.PortfolioID); err != nil {
			return err
		}

		fields := store.ExpenseFields{
			PortfolioID:   old.PortfolioID,
			ListingID:     old.ListingID,
			OwnerID:       old.OwnerID,
			InventoryID:   old.InventoryID,
			QuantityUsed:  old.QuantityUsed,
			TotalCost:     old.TotalCost,
			MarkupPercent: old.MarkupPercent,
			BilledAmount:  old.BilledAmount,
			Notes:         old.Notes,
			Date:          old.Date,
		}

		if patch.ListingID != nil && *patch.ListingID != old.ListingID {
			listing, err := loadListing(ctx, tx, p, *patch.ListingID)
			if err != nil {
				return err
			}
			fields.PortfolioID = listing.PortfolioID
			fields.ListingID = listing.ID
			fields.OwnerID = listing.OwnerID
		}
		if patch.InventoryID != nil {
			fields.InventoryID = patch.InventoryID
		}
		if patch.QuantityUsed != nil {
			fields.QuantityUsed = patch.QuantityUsed
		}
		if patch.TotalCost != nil {
			fields.TotalCost = *patch.TotalCost
		}
		if patch.MarkupPercent != nil {
			fields.MarkupPercent = *patch.MarkupPercent
		}
		switch {
		case patch.BilledAmount != nil:
			fields.BilledAmount = *patch.BilledAmount
		case patch.TotalCost != nil || patch.MarkupPercent != nil:
			fields.BilledAmount = model.BilledFor(fields.TotalCost, fields.MarkupPercent)
		}
		if patch.Notes != nil {
			fields.Notes = *patch.Notes
		}
		if patch.Date != nil {
			fields.Date = *patch.Date
		}

		if err := s.reconcile(ctx, tx, p, old, fields); err != nil {
			return err
		}

		if err := store.UpdateExpense(ctx, tx, id, fields); err != nil {
			return err
		}
		if expense, err = store.GetExpense(ctx, tx, id); err != nil {
			return err
		}

		return audit(ctx, tx, p, fields.PortfolioID, model.ActionExpenseUpdated,
			"Expense #%d updated: billed %s", id, fields.BilledAmount.StringFixed(2))
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *Service) reconcile(ctx context.Context, tx *sql.Tx, p access.Principal, old *model.Expense, next store.ExpenseFields) error {
	if old.InventoryID == nil && next.InventoryID != nil {
		// Attaching an item to an expense that had none leaves stock alone.
		if _, err := loadStockItem(ctx, tx, *next.InventoryID, next.PortfolioID); err != nil {
			return err
		}
		slog.Warn("inventory attached to existing expense, stock not deducted",
			"expense", old.ID, "inventory_id", *next.InventoryID)
		return nil
	}

	if old.InventoryID != nil && next.InventoryID != nil && *old.InventoryID == *next.InventoryID &&
		next.PortfolioID != old.PortfolioID {
		// The expense moved portfolios with the same item; a missing item
		// falls through to the skip-with-warning handling below.
		_, err := loadStockItem(ctx, tx, *next.InventoryID, next.PortfolioID)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}
	}

	oldQty := old.UsedQuantity()
	newQty := 0
	if next.QuantityUsed != nil {
		newQty = *next.QuantityUsed
	}

	switch {
	case old.InventoryID != nil && next.InventoryID != nil && *old.InventoryID != *next.InventoryID:
		// Validate the new item before touching the old one.
		newItem, err := loadStockItem(ctx, tx, *next.InventoryID, next.PortfolioID)
		if err != nil {
			return err
		}

		restored, err := store.AdjustQuantity(ctx, tx, *old.InventoryID, oldQty)
		if err != nil {
			return err
		}
		if restored == nil {
			slog.Warn("inventory restore skipped, item missing or deleted",
				"expense", old.ID, "inventory_id", *old.InventoryID, "quantity", oldQty)
		} else if err := audit(ctx, tx, p, restored.PortfolioID, model.ActionInventoryRestored,
			"Returned %d %s to stock from expense #%d", oldQty, restored.Name, old.ID); err != nil {
			return err
		}

		deducted, err := store.AdjustQuantity(ctx, tx, newItem.ID, -newQty)
		if err != nil {
			return err
		}
		return alertIfLow(ctx, tx, p, deducted)

	case old.InventoryID != nil && next.InventoryID != nil && oldQty != newQty:
		delta := oldQty - newQty
		adjusted, err := store.AdjustQuantity(ctx, tx, *old.InventoryID, delta)
		if err != nil {
			return err
		}
		if adjusted == nil {
			slog.Warn("inventory adjustment skipped, item missing or deleted",
				"expense", old.ID, "inventory_id", *old.InventoryID, "delta", delta)
			return nil
		}

		if delta > 0 {
			return audit(ctx, tx, p, adjusted.PortfolioID, model.ActionInventoryAdjusted,
				"Returned %d %s to stock from expense #%d", delta, adjusted.Name, old.ID)
		}
		if err := audit(ctx, tx, p, adjusted.PortfolioID, model.ActionInventoryAdjusted,
			"Used %d more %s for expense #%d", -delta, adjusted.Name, old.ID); err != nil {
			return err
		}
		return alertIfLow(ctx, tx, p, adjusted)
	}

	return nil
}

// DeleteExpense removes an expense and returns its used quantity to stock.
func (s *Service) DeleteExpense(ctx context.Context, p access.Principal, id int64) error {
	return store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		expense, err := store.GetExpense(ctx, tx, id)
		if err != nil {
			return err
		}
		if expense == nil {
			return fmt.Errorf("expense %d: %w", id, model.ErrNotFound)
		}
		if err := access.Check(p, expense.PortfolioID); err != nil {
			return err
		}

		if qty := expense.UsedQuantity(); expense.InventoryID != nil && qty > 0 {
			restored, err := store.AdjustQuantity(ctx, tx, *expense.InventoryID, qty)
			if err != nil {
				return err
			}
			if restored == nil {
				slog.Warn("inventory restore skipped, item missing or deleted",
					"expense", id, "inventory_id", *expense.InventoryID, "quantity", qty)
			} else if err := audit(ctx, tx, p, restored.PortfolioID, model.ActionInventoryRestored,
				"Returned %d %s to stock from deleted expense #%d", qty, restored.Name, id); err != nil {
				return err
			}
		}

		if err := store.DeleteExpense(ctx, tx, id); err != nil {
			return err
		}

		return audit(ctx, tx, p, expense.PortfolioID, model.ActionExpenseDeleted,
			"Expense #%d for %s (%s) deleted", id, expense.ListingName, expense.OwnerName)
	})
}
