package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/najem/internal/model"
)

const listingSelect = `SELECT l.id, l.portfolio_id, l.owner_id, l.name, l.address,
       l.created_at, l.deleted_at, o.name AS owner_name
FROM listings l
JOIN owners o ON o.id = l.owner_id`

func scanListing(s scanner) (*model.Listing, error) {
	l := &model.Listing{}
	var address sql.NullString
	if err := s.Scan(&l.ID, &l.PortfolioID, &l.OwnerID, &l.Name, &address,
		&l.CreatedAt, &l.DeletedAt, &l.OwnerName); err != nil {
		return nil, err
	}
	l.Address = address.String
	return l, nil
}

// CreateListing creates a listing for an owner. The listing inherits the owner's portfolio.
func CreateListing(ctx context.Context, q Querier, ownerID int64, name, address string) (*model.Listing, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO listings (portfolio_id, owner_id, name, address)
		 SELECT portfolio_id, id, ?, ? FROM owners WHERE id = ? AND deleted_at IS NULL`,
		name, nullString(address), ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating listing: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("owner %d: %w", ownerID, model.ErrNotFound)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting listing id: %w", err)
	}

	return GetListing(ctx, q, id)
}

// GetListing returns a listing by ID, including soft-deleted ones.
func GetListing(ctx context.Context, q Querier, id int64) (*model.Listing, error) {
	l, err := scanListing(q.QueryRowContext(ctx, listingSelect+` WHERE l.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return l, nil
}

// ListListings returns non-deleted listings, optionally filtered by portfolio and owner.
func ListListings(ctx context.Context, q Querier, portfolioID *int64, ownerID int64) ([]model.Listing, error) {
	query := listingSelect + ` WHERE l.deleted_at IS NULL`
	var args []any
	if portfolioID != nil {
		query += ` AND l.portfolio_id = ?`
		args = append(args, *portfolioID)
	}
	if ownerID > 0 {
		query += ` AND l.owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY l.name`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// UpdateListing updates a listing's name and address.
func UpdateListing(ctx context.Context, q Querier, id int64, name, address string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE listings SET name = ?, address = ? WHERE id = ? AND deleted_at IS NULL`,
		name, nullString(address), id,
	)
	if err != nil {
		return fmt.Errorf("updating listing: %w", err)
	}
	return nil
}

// DeleteListing soft-deletes a listing. Its expenses stay attached for history.
func DeleteListing(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE listings SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	return nil
}
