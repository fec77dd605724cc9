package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/najem/internal/model"
)

// LogActivity appends an audit entry.
func LogActivity(ctx context.Context, q Querier, userID, portfolioID *int64, action, details string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO activity_log (user_id, portfolio_id, action, details) VALUES (?, ?, ?, ?)`,
		userID, portfolioID, action, details,
	)
	if err != nil {
		return fmt.Errorf("logging activity %s: %w", action, err)
	}
	return nil
}

// ListActivity returns the most recent audit entries, optionally for one portfolio.
func ListActivity(ctx context.Context, q Querier, portfolioID *int64, action string, limit int) ([]model.ActivityLog, error) {
	query := `SELECT a.id, a.user_id, a.portfolio_id, a.action, a.details, a.created_at,
	                 COALESCE(u.username, '')
	          FROM activity_log a
	          LEFT JOIN users u ON u.id = a.user_id
	          WHERE 1=1`
	var args []any
	if portfolioID != nil {
		query += ` AND a.portfolio_id = ?`
		args = append(args, *portfolioID)
	}
	if action != "" {
		query += ` AND a.action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY a.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var entries []model.ActivityLog
	for rows.Next() {
		var a model.ActivityLog
		var userID, pfID sql.NullInt64
		if err := rows.Scan(&a.ID, &userID, &pfID, &a.Action, &a.Details, &a.CreatedAt, &a.Username); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		if userID.Valid {
			a.UserID = &userID.Int64
		}
		if pfID.Valid {
			a.PortfolioID = &pfID.Int64
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}
