package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/najem/internal/model"
)

// CreatePortfolio creates a new portfolio.
func CreatePortfolio(ctx context.Context, q Querier, name string) (*model.Portfolio, error) {
	result, err := q.ExecContext(ctx, `INSERT INTO portfolios (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("creating portfolio: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting portfolio id: %w", err)
	}

	return GetPortfolio(ctx, q, id)
}

// GetPortfolio returns a portfolio by ID.
func GetPortfolio(ctx context.Context, q Querier, id int64) (*model.Portfolio, error) {
	p := &model.Portfolio{}
	var logoMime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, name, logo_mime, created_at, deleted_at FROM portfolios WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &logoMime, &p.CreatedAt, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting portfolio: %w", err)
	}
	p.LogoMime = logoMime.String
	return p, nil
}

// ListPortfolios returns all non-deleted portfolios.
func ListPortfolios(ctx context.Context, q Querier) ([]model.Portfolio, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, logo_mime, created_at, deleted_at
		 FROM portfolios WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []model.Portfolio
	for rows.Next() {
		var p model.Portfolio
		var logoMime sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &logoMime, &p.CreatedAt, &p.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning portfolio: %w", err)
		}
		p.LogoMime = logoMime.String
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// UpdatePortfolio renames a portfolio.
func UpdatePortfolio(ctx context.Context, q Querier, id int64, name string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE portfolios SET name = ? WHERE id = ? AND deleted_at IS NULL`, name, id,
	)
	if err != nil {
		return fmt.Errorf("updating portfolio: %w", err)
	}
	return nil
}

// DeletePortfolio soft-deletes a portfolio. Fails while it still has owners.
func DeletePortfolio(ctx context.Context, q Querier, id int64) error {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM owners WHERE portfolio_id = ? AND deleted_at IS NULL`, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking portfolio owners: %w", err)
	}
	if count > 0 {
		return model.Invalid("id", fmt.Sprintf("portfolio still has %d owners", count))
	}

	_, err = q.ExecContext(ctx,
		`UPDATE portfolios SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting portfolio: %w", err)
	}
	return nil
}

// SetPortfolioLogo stores a processed logo image.
func SetPortfolioLogo(ctx context.Context, q Querier, id int64, logo []byte, mime string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE portfolios SET logo = ?, logo_mime = ? WHERE id = ? AND deleted_at IS NULL`,
		logo, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting portfolio logo: %w", err)
	}
	return nil
}

// GetPortfolioLogo returns a portfolio's logo and MIME type, or nil if unset.
func GetPortfolioLogo(ctx context.Context, q Querier, id int64) ([]byte, string, error) {
	var logo []byte
	var mime sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT logo, logo_mime FROM portfolios WHERE id = ?`, id,
	).Scan(&logo, &mime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting portfolio logo: %w", err)
	}
	return logo, mime.String, nil
}
