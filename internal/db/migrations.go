package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: activity lookups by portfolio for the dashboard feed.
	`CREATE INDEX IF NOT EXISTS idx_activity_log_portfolio
	     ON activity_log(portfolio_id, created_at)`,
	// Migration 2: batch dedup lookups by period and title.
	`CREATE INDEX IF NOT EXISTS idx_report_batches_period
	     ON report_batches(portfolio_id, year, month, name)`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
