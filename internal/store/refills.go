package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/model"
)

// CreateRefill records a stock addition. It does not change the quantity;
// callers pair it with AdjustQuantity in one transaction.
func CreateRefill(ctx context.Context, q Querier, inventoryID int64, quantity int, cost decimal.NullDecimal, notes string, refilledBy *int64) (*model.Refill, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO inventory_refills (inventory_id, quantity, cost, notes, refilled_by)
		 VALUES (?, ?, ?, ?, ?)`,
		inventoryID, quantity, cost, nullString(notes), refilledBy,
	)
	if err != nil {
		return nil, fmt.Errorf("recording refill: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting refill id: %w", err)
	}

	rows, err := q.QueryContext(ctx, refillSelect+` WHERE r.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("getting refill: %w", err)
	}
	defer rows.Close()

	refills, err := scanRefills(rows)
	if err != nil {
		return nil, err
	}
	if len(refills) == 0 {
		return nil, nil
	}
	return &refills[0], nil
}

const refillSelect = `SELECT r.id, r.inventory_id, r.quantity, r.cost, r.notes,
       r.refilled_at, r.refilled_by, i.name AS item_name
FROM inventory_refills r
JOIN inventory_items i ON i.id = r.inventory_id`

// ListRefills returns the refill history of an item, newest first.
func ListRefills(ctx context.Context, q Querier, inventoryID int64) ([]model.Refill, error) {
	rows, err := q.QueryContext(ctx,
		refillSelect+` WHERE r.inventory_id = ? ORDER BY r.id DESC`, inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing refills: %w", err)
	}
	defer rows.Close()

	return scanRefills(rows)
}

func scanRefills(rows *sql.Rows) ([]model.Refill, error) {
	var refills []model.Refill
	for rows.Next() {
		var r model.Refill
		var notes sql.NullString
		if err := rows.Scan(&r.ID, &r.InventoryID, &r.Quantity, &r.Cost, &notes,
			&r.RefilledAt, &r.RefilledBy, &r.ItemName); err != nil {
			return nil, fmt.Errorf("scanning refill: %w", err)
		}
		r.Notes = notes.String
		refills = append(refills, r)
	}
	return refills, rows.Err()
}
