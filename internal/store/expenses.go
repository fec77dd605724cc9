package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/model"
)

const expenseSelect = `SELECT e.id, e.portfolio_id, e.listing_id, e.owner_id, e.inventory_id,
       e.quantity_used, e.total_cost, e.markup_percent, e.billed_amount, e.notes,
       e.date, e.created_at, e.updated_at,
       l.name AS listing_name, o.name AS owner_name, i.name AS inventory_name
FROM expenses e
JOIN listings l ON l.id = e.listing_id
JOIN owners o ON o.id = e.owner_id
LEFT JOIN inventory_items i ON i.id = e.inventory_id`

func scanExpense(s scanner) (*model.Expense, error) {
	e := &model.Expense{}
	var inventoryID, quantityUsed sql.NullInt64
	var notes, inventoryName sql.NullString
	if err := s.Scan(&e.ID, &e.PortfolioID, &e.ListingID, &e.OwnerID, &inventoryID,
		&quantityUsed, &e.TotalCost, &e.MarkupPercent, &e.BilledAmount, &notes,
		&e.Date, &e.CreatedAt, &e.UpdatedAt,
		&e.ListingName, &e.OwnerName, &inventoryName); err != nil {
		return nil, err
	}
	if inventoryID.Valid {
		e.InventoryID = &inventoryID.Int64
	}
	if quantityUsed.Valid {
		v := int(quantityUsed.Int64)
		e.QuantityUsed = &v
	}
	e.Notes = notes.String
	e.InventoryName = inventoryName.String
	return e, nil
}

// ExpenseFields are the stored attributes of an expense. The portfolio and
// owner are derived from the listing by the caller.
type ExpenseFields struct {
	PortfolioID   int64
	ListingID     int64
	OwnerID       int64
	InventoryID   *int64
	QuantityUsed  *int
	TotalCost     decimal.Decimal
	MarkupPercent decimal.Decimal
	BilledAmount  decimal.Decimal
	Notes         string
	Date          time.Time
}

// ExpenseFilter narrows ListExpenses. Zero values match everything.
type ExpenseFilter struct {
	PortfolioID *int64
	OwnerID     int64
	ListingID   int64
	From, To    time.Time
}

// CreateExpense inserts an expense row. Inventory is not touched here.
func CreateExpense(ctx context.Context, q Querier, f ExpenseFields) (*model.Expense, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO expenses (portfolio_id, listing_id, owner_id, inventory_id, quantity_used,
		                       total_cost, markup_percent, billed_amount, notes, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.PortfolioID, f.ListingID, f.OwnerID, f.InventoryID, f.QuantityUsed,
		f.TotalCost, f.MarkupPercent, f.BilledAmount, nullString(f.Notes), f.Date.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting expense id: %w", err)
	}

	return GetExpense(ctx, q, id)
}

// GetExpense returns an expense with listing, owner and item names joined.
func GetExpense(ctx context.Context, q Querier, id int64) (*model.Expense, error) {
	e, err := scanExpense(q.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting expense: %w", err)
	}
	return e, nil
}

// ListExpenses returns expenses matching the filter, newest first. The date
// range is half-open: From <= date < To.
func ListExpenses(ctx context.Context, q Querier, f ExpenseFilter) ([]model.Expense, error) {
	query := expenseSelect + ` WHERE 1=1`
	var args []any
	if f.PortfolioID != nil {
		query += ` AND e.portfolio_id = ?`
		args = append(args, *f.PortfolioID)
	}
	if f.OwnerID != 0 {
		query += ` AND e.owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.ListingID != 0 {
		query += ` AND e.listing_id = ?`
		args = append(args, f.ListingID)
	}
	if !f.From.IsZero() {
		query += ` AND e.date >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND e.date < ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY e.date DESC, e.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expenses: %w", err)
	}
	defer rows.Close()

	var expenses []model.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

// UpdateExpense overwrites an expense's stored fields.
func UpdateExpense(ctx context.Context, q Querier, id int64, f ExpenseFields) error {
	result, err := q.ExecContext(ctx,
		`UPDATE expenses
		 SET portfolio_id = ?, listing_id = ?, owner_id = ?, inventory_id = ?, quantity_used = ?,
		     total_cost = ?, markup_percent = ?, billed_amount = ?, notes = ?, date = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		f.PortfolioID, f.ListingID, f.OwnerID, f.InventoryID, f.QuantityUsed,
		f.TotalCost, f.MarkupPercent, f.BilledAmount, nullString(f.Notes), f.Date.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating expense: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteExpense removes an expense row.
func DeleteExpense(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting expense: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
