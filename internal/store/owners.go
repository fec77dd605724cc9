package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/najem/internal/model"
)

const ownerColumns = `id, portfolio_id, name, email, phone, created_at, deleted_at`

func scanOwner(s scanner) (*model.Owner, error) {
	o := &model.Owner{}
	var email, phone sql.NullString
	if err := s.Scan(&o.ID, &o.PortfolioID, &o.Name, &email, &phone, &o.CreatedAt, &o.DeletedAt); err != nil {
		return nil, err
	}
	o.Email = email.String
	o.Phone = phone.String
	return o, nil
}

// CreateOwner creates a new owner in a portfolio.
func CreateOwner(ctx context.Context, q Querier, portfolioID int64, name, email, phone string) (*model.Owner, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO owners (portfolio_id, name, email, phone) VALUES (?, ?, ?, ?)`,
		portfolioID, name, nullString(email), nullString(phone),
	)
	if err != nil {
		return nil, fmt.Errorf("creating owner: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting owner id: %w", err)
	}

	return GetOwner(ctx, q, id)
}

// GetOwner returns an owner by ID, including soft-deleted ones.
func GetOwner(ctx context.Context, q Querier, id int64) (*model.Owner, error) {
	o, err := scanOwner(q.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting owner: %w", err)
	}
	return o, nil
}

// ListOwners returns all non-deleted owners, optionally limited to a portfolio.
func ListOwners(ctx context.Context, q Querier, portfolioID *int64) ([]model.Owner, error) {
	query := `SELECT ` + ownerColumns + ` FROM owners WHERE deleted_at IS NULL`
	var args []any
	if portfolioID != nil {
		query += ` AND portfolio_id = ?`
		args = append(args, *portfolioID)
	}
	query += ` ORDER BY name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	defer rows.Close()

	var owners []model.Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning owner: %w", err)
		}
		owners = append(owners, *o)
	}
	return owners, rows.Err()
}

// UpdateOwner updates an owner's contact details.
func UpdateOwner(ctx context.Context, q Querier, id int64, name, email, phone string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE owners SET name = ?, email = ?, phone = ? WHERE id = ? AND deleted_at IS NULL`,
		name, nullString(email), nullString(phone), id,
	)
	if err != nil {
		return fmt.Errorf("updating owner: %w", err)
	}
	return nil
}

// DeleteOwner soft-deletes an owner. Fails if the owner still has active listings.
func DeleteOwner(ctx context.Context, q Querier, id int64) error {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE owner_id = ? AND deleted_at IS NULL`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking owner listings: %w", err)
	}
	if count > 0 {
		return model.Invalid("id", fmt.Sprintf("owner still has %d active listings", count))
	}

	_, err = q.ExecContext(ctx,
		`UPDATE owners SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting owner: %w", err)
	}
	return nil
}
