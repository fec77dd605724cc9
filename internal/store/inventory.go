package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/model"
)

const inventoryColumns = `id, portfolio_id, name, category, cost_price, default_markup,
       quantity, min_quantity, created_at, updated_at, deleted_at`

func scanInventoryItem(s scanner) (*model.InventoryItem, error) {
	item := &model.InventoryItem{}
	var category sql.NullString
	var minQuantity sql.NullInt64
	if err := s.Scan(&item.ID, &item.PortfolioID, &item.Name, &category, &item.CostPrice, &item.DefaultMarkup,
		&item.Quantity, &minQuantity, &item.CreatedAt, &item.UpdatedAt, &item.DeletedAt); err != nil {
		return nil, err
	}
	item.Category = category.String
	if minQuantity.Valid {
		v := int(minQuantity.Int64)
		item.MinQuantity = &v
	}
	item.Deleted = item.DeletedAt != nil
	return item, nil
}

func scanInventoryItems(rows *sql.Rows) ([]model.InventoryItem, error) {
	var items []model.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// InventoryFields are the editable attributes of an inventory item.
type InventoryFields struct {
	Name          string
	Category      string
	CostPrice     decimal.Decimal
	DefaultMarkup decimal.Decimal
	MinQuantity   *int
}

// CreateInventoryItem creates a new inventory item with an opening quantity.
func CreateInventoryItem(ctx context.Context, q Querier, portfolioID int64, f InventoryFields, quantity int) (*model.InventoryItem, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO inventory_items (portfolio_id, name, category, cost_price, default_markup, quantity, min_quantity)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		portfolioID, f.Name, nullString(f.Category), f.CostPrice, f.DefaultMarkup, quantity, f.MinQuantity,
	)
	if err != nil {
		return nil, fmt.Errorf("creating inventory item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting inventory item id: %w", err)
	}

	return GetInventoryItem(ctx, q, id)
}

// GetInventoryItem returns an item by ID, including soft-deleted ones so that
// historical expenses can still be joined.
func GetInventoryItem(ctx context.Context, q Querier, id int64) (*model.InventoryItem, error) {
	item, err := scanInventoryItem(q.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory_items WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory item: %w", err)
	}
	return item, nil
}

// ListInventoryItems returns inventory items, optionally limited to a portfolio.
// Soft-deleted items are only included when includeDeleted is set.
func ListInventoryItems(ctx context.Context, q Querier, portfolioID *int64, includeDeleted bool) ([]model.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE 1=1`
	var args []any
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if portfolioID != nil {
		query += ` AND portfolio_id = ?`
		args = append(args, *portfolioID)
	}
	query += ` ORDER BY category, name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	return scanInventoryItems(rows)
}

// ListInventoryItemsByID returns the given items, soft-deleted included.
func ListInventoryItemsByID(ctx context.Context, q Querier, ids []int64) ([]model.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + inventoryColumns + ` FROM inventory_items WHERE id IN (?`
	args := []any{ids[0]}
	for _, id := range ids[1:] {
		query += `, ?`
		args = append(args, id)
	}
	query += `) ORDER BY name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory items by id: %w", err)
	}
	defer rows.Close()

	return scanInventoryItems(rows)
}

// ListLowStock returns active items whose quantity is at or below their threshold.
func ListLowStock(ctx context.Context, q Querier, portfolioID *int64) ([]model.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items
	          WHERE deleted_at IS NULL AND quantity <= COALESCE(min_quantity, ?)`
	args := []any{model.DefaultMinQuantity}
	if portfolioID != nil {
		query += ` AND portfolio_id = ?`
		args = append(args, *portfolioID)
	}
	query += ` ORDER BY quantity - COALESCE(min_quantity, ?), name`
	args = append(args, model.DefaultMinQuantity)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	defer rows.Close()

	return scanInventoryItems(rows)
}

// UpdateInventoryItem updates an item's metadata. Quantity is not editable
// here; it only moves through AdjustQuantity.
func UpdateInventoryItem(ctx context.Context, q Querier, id int64, f InventoryFields) error {
	_, err := q.ExecContext(ctx,
		`UPDATE inventory_items
		 SET name = ?, category = ?, cost_price = ?, default_markup = ?, min_quantity = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		f.Name, nullString(f.Category), f.CostPrice, f.DefaultMarkup, f.MinQuantity, id,
	)
	if err != nil {
		return fmt.Errorf("updating inventory item: %w", err)
	}
	return nil
}

// DeleteInventoryItem soft-deletes an item.
func DeleteInventoryItem(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE inventory_items SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting inventory item: %w", err)
	}
	return nil
}

// AdjustQuantity adds delta (which may be negative) to an active item's
// quantity in a single statement and returns the updated item. There is no
// floor: quantity may go negative. Returns nil if the item is missing or
// soft-deleted.
func AdjustQuantity(ctx context.Context, q Querier, id int64, delta int) (*model.InventoryItem, error) {
	item, err := scanInventoryItem(q.QueryRowContext(ctx,
		`UPDATE inventory_items
		 SET quantity = quantity + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL
		 RETURNING `+inventoryColumns,
		delta, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("adjusting inventory quantity: %w", err)
	}
	return item, nil
}
