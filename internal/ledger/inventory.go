package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// ItemInput is the payload for creating or updating an inventory item.
type ItemInput struct {
	PortfolioID   *int64
	Name          string
	Category      string
	CostPrice     decimal.Decimal
	DefaultMarkup decimal.Decimal
	Quantity      int
	MinQuantity   *int
}

func (in *ItemInput) validate() error {
	verr := &model.ValidationError{}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", "is required")
	}
	if in.CostPrice.IsNegative() {
		verr.Add("cost_price", "must not be negative")
	}
	if in.DefaultMarkup.IsNegative() {
		verr.Add("default_markup", "must not be negative")
	}
	if in.MinQuantity != nil && *in.MinQuantity < 0 {
		verr.Add("min_quantity", "must not be negative")
	}
	return verr.Err()
}

func (in *ItemInput) fields() store.InventoryFields {
	return store.InventoryFields{
		Name:          strings.TrimSpace(in.Name),
		Category:      strings.TrimSpace(in.Category),
		CostPrice:     in.CostPrice,
		DefaultMarkup: in.DefaultMarkup,
		MinQuantity:   in.MinQuantity,
	}
}

// RefillInput is one stock addition.
type RefillInput struct {
	InventoryID int64
	Quantity    int
	Cost        *decimal.Decimal
	Notes       string
}

func (in *RefillInput) validate(verr *model.ValidationError, prefix string) {
	if in.InventoryID <= 0 {
		verr.Add(prefix+"inventory_id", "is required")
	}
	if in.Quantity <= 0 {
		verr.Add(prefix+"quantity", "must be positive")
	}
	if in.Cost != nil && in.Cost.IsNegative() {
		verr.Add(prefix+"cost", "must not be negative")
	}
}

func (in *RefillInput) cost() decimal.NullDecimal {
	if in.Cost == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*in.Cost)
}

// CreateItem adds an inventory item to the principal's portfolio.
func (s *Service) CreateItem(ctx context.Context, p access.Principal, in ItemInput) (*model.InventoryItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	portfolioID, err := access.ResolveExisting(ctx, s.DB, p, in.PortfolioID)
	if err != nil {
		return nil, err
	}

	var item *model.InventoryItem
	err = store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		if item, err = store.CreateInventoryItem(ctx, tx, portfolioID, in.fields(), in.Quantity); err != nil {
			return err
		}
		return audit(ctx, tx, p, portfolioID, model.ActionInventoryCreated,
			"Created %s with %d in stock", item.Name, item.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetItem returns an inventory item the principal may read, deleted or not.
func (s *Service) GetItem(ctx context.Context, p access.Principal, id int64) (*model.InventoryItem, error) {
	item, err := store.GetInventoryItem(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("inventory item %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, item.PortfolioID); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns the inventory visible to the principal.
func (s *Service) ListItems(ctx context.Context, p access.Principal, portfolioID *int64, includeDeleted bool) ([]model.InventoryItem, error) {
	scope, err := access.Scope(p, portfolioID)
	if err != nil {
		return nil, err
	}
	return store.ListInventoryItems(ctx, s.DB, scope, includeDeleted)
}

// UpdateItem changes an item's metadata. The quantity field is ignored;
// stock only moves through expenses and refills.
func (s *Service) UpdateItem(ctx context.Context, p access.Principal, id int64, in ItemInput) (*model.InventoryItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var item *model.InventoryItem
	err := store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		existing, err := activeItem(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if err := store.UpdateInventoryItem(ctx, tx, id, in.fields()); err != nil {
			return err
		}
		if item, err = store.GetInventoryItem(ctx, tx, id); err != nil {
			return err
		}
		return audit(ctx, tx, p, existing.PortfolioID, model.ActionInventoryUpdated, "Updated %s", item.Name)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem soft-deletes an item. Expenses that reference it keep the link.
func (s *Service) DeleteItem(ctx context.Context, p access.Principal, id int64) error {
	return store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		item, err := activeItem(ctx, tx, p, id)
		if err != nil {
			return err
		}
		if err := store.DeleteInventoryItem(ctx, tx, id); err != nil {
			return err
		}
		return audit(ctx, tx, p, item.PortfolioID, model.ActionInventoryDeleted, "Deleted %s", item.Name)
	})
}

func activeItem(ctx context.Context, q store.Querier, p access.Principal, id int64) (*model.InventoryItem, error) {
	item, err := store.GetInventoryItem(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if item == nil || item.Deleted {
		return nil, fmt.Errorf("inventory item %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, item.PortfolioID); err != nil {
		return nil, err
	}
	return item, nil
}

// Refill adds stock to one item and records it in the refill history.
func (s *Service) Refill(ctx context.Context, p access.Principal, in RefillInput) (*model.InventoryItem, error) {
	items, err := s.BatchRefill(ctx, p, []RefillInput{in})
	if err != nil {
		return nil, unprefix(err)
	}
	return &items[0], nil
}

// BatchRefill adds stock to several items. Every entry is validated before
// any is applied; if one fails, nothing changes.
func (s *Service) BatchRefill(ctx context.Context, p access.Principal, entries []RefillInput) ([]model.InventoryItem, error) {
	if len(entries) == 0 {
		return nil, model.Invalid("entries", "at least one entry is required")
	}

	verr := &model.ValidationError{}
	for i := range entries {
		entries[i].validate(verr, fmt.Sprintf("entries[%d].", i))
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	var updated []model.InventoryItem
	err := store.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for i, e := range entries {
			if _, err := activeItem(ctx, tx, p, e.InventoryID); err != nil {
				return fmt.Errorf("entries[%d]: %w", i, err)
			}
		}

		for _, e := range entries {
			item, err := store.AdjustQuantity(ctx, tx, e.InventoryID, e.Quantity)
			if err != nil {
				return err
			}
			if _, err := store.CreateRefill(ctx, tx, e.InventoryID, e.Quantity, e.cost(), e.Notes, p.UserRef()); err != nil {
				return err
			}
			if err := audit(ctx, tx, p, item.PortfolioID, model.ActionInventoryRefilled,
				"Added %d %s, now %d in stock", e.Quantity, item.Name, item.Quantity); err != nil {
				return err
			}
			updated = append(updated, *item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// unprefix strips the entries[0]. prefix from single-entry validation errors.
func unprefix(err error) error {
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	out := &model.ValidationError{}
	for _, f := range verr.Fields {
		out.Add(strings.TrimPrefix(f.Field, "entries[0]."), f.Message)
	}
	return out
}

// Refills returns the refill history of an item.
func (s *Service) Refills(ctx context.Context, p access.Principal, id int64) ([]model.Refill, error) {
	if _, err := s.GetItem(ctx, p, id); err != nil {
		return nil, err
	}
	return store.ListRefills(ctx, s.DB, id)
}

// ShoppingList returns low-stock items with a suggested order quantity that
// brings each back to twice its threshold.
func (s *Service) ShoppingList(ctx context.Context, p access.Principal, portfolioID *int64) ([]model.ShoppingListEntry, error) {
	scope, err := access.Scope(p, portfolioID)
	if err != nil {
		return nil, err
	}

	items, err := store.ListLowStock(ctx, s.DB, scope)
	if err != nil {
		return nil, err
	}

	entries := make([]model.ShoppingListEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, model.ShoppingListEntry{
			Item:      item,
			Suggested: max(2*item.Threshold()-item.Quantity, 1),
		})
	}
	return entries, nil
}
