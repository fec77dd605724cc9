package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/najem/internal/model"
)

const batchSelect = `SELECT b.id, b.portfolio_id, b.name, b.month, b.year, b.notes, b.created_at,
       (SELECT COUNT(*) FROM reports r WHERE r.batch_id = b.id),
       (SELECT COUNT(*) FROM reports r WHERE r.batch_id = b.id AND r.sent = 1)
FROM report_batches b`

func scanBatch(s scanner) (*model.Batch, error) {
	b := &model.Batch{Type: model.ReportTypeBatch}
	if err := s.Scan(&b.ID, &b.PortfolioID, &b.Name, &b.Month, &b.Year, &b.Notes, &b.CreatedAt,
		&b.ReportCount, &b.SentCount); err != nil {
		return nil, err
	}
	return b, nil
}

// CreateBatch creates an empty report batch with a fresh UUID.
func CreateBatch(ctx context.Context, q Querier, portfolioID int64, name string, month, year int) (*model.Batch, error) {
	id := uuid.NewString()
	_, err := q.ExecContext(ctx,
		`INSERT INTO report_batches (id, portfolio_id, name, month, year) VALUES (?, ?, ?, ?, ?)`,
		id, portfolioID, name, month, year,
	)
	if err != nil {
		return nil, fmt.Errorf("creating report batch: %w", err)
	}
	return GetBatch(ctx, q, id)
}

// GetBatch returns a batch with its report counts.
func GetBatch(ctx context.Context, q Querier, id string) (*model.Batch, error) {
	b, err := scanBatch(q.QueryRowContext(ctx, batchSelect+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting report batch: %w", err)
	}
	return b, nil
}

// FindBatch returns the batch with the same portfolio, period and name, if any.
func FindBatch(ctx context.Context, q Querier, portfolioID int64, name string, month, year int) (*model.Batch, error) {
	b, err := scanBatch(q.QueryRowContext(ctx,
		batchSelect+` WHERE b.portfolio_id = ? AND b.name = ? AND b.month = ? AND b.year = ?`,
		portfolioID, name, month, year,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding report batch: %w", err)
	}
	return b, nil
}

// ListBatches returns batches newest first, optionally for one portfolio.
func ListBatches(ctx context.Context, q Querier, portfolioID *int64) ([]model.Batch, error) {
	query := batchSelect
	var args []any
	if portfolioID != nil {
		query += ` WHERE b.portfolio_id = ?`
		args = append(args, *portfolioID)
	}
	query += ` ORDER BY b.created_at DESC, b.year DESC, b.month DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing report batches: %w", err)
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// UpdateBatchNotes replaces a batch's notes.
func UpdateBatchNotes(ctx context.Context, q Querier, id, notes string) error {
	result, err := q.ExecContext(ctx, `UPDATE report_batches SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("updating batch notes: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteBatch removes a batch and, through the foreign key, its reports.
func DeleteBatch(ctx context.Context, q Querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM reports WHERE batch_id = ?`, id); err != nil {
		return fmt.Errorf("deleting batch reports: %w", err)
	}
	result, err := q.ExecContext(ctx, `DELETE FROM report_batches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting report batch: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

const reportSelect = `SELECT r.id, r.batch_id, r.portfolio_id, r.owner_id, r.month, r.year, r.name,
       r.file_path, r.sent, r.sent_at, r.notes, r.generated_at,
       o.name AS owner_name, o.email AS owner_email
FROM reports r
LEFT JOIN owners o ON o.id = r.owner_id`

func scanReport(s scanner) (*model.Report, error) {
	r := &model.Report{Type: model.ReportTypeMonthly}
	var filePath, ownerName, ownerEmail sql.NullString
	if err := s.Scan(&r.ID, &r.BatchID, &r.PortfolioID, &r.OwnerID, &r.Month, &r.Year, &r.Name,
		&filePath, &r.Sent, &r.SentAt, &r.Notes, &r.GeneratedAt,
		&ownerName, &ownerEmail); err != nil {
		return nil, err
	}
	r.FilePath = filePath.String
	r.HasFile = filePath.Valid && filePath.String != ""
	r.OwnerName = ownerName.String
	r.OwnerEmail = ownerEmail.String
	return r, nil
}

func scanReports(rows *sql.Rows) ([]model.Report, error) {
	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// CreateReport adds a monthly owner report to a batch.
func CreateReport(ctx context.Context, q Querier, batch *model.Batch, ownerID int64, name string) (*model.Report, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO reports (batch_id, portfolio_id, owner_id, month, year, name)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.PortfolioID, ownerID, batch.Month, batch.Year, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting report id: %w", err)
	}

	return GetReport(ctx, q, id)
}

// GetReport returns a report with the owner's name and email joined.
func GetReport(ctx context.Context, q Querier, id int64) (*model.Report, error) {
	r, err := scanReport(q.QueryRowContext(ctx, reportSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return r, nil
}

// FindOwnerReport returns the owner's report for a period, in any batch.
func FindOwnerReport(ctx context.Context, q Querier, portfolioID, ownerID int64, month, year int) (*model.Report, error) {
	r, err := scanReport(q.QueryRowContext(ctx,
		reportSelect+` WHERE r.portfolio_id = ? AND r.owner_id = ? AND r.month = ? AND r.year = ?`,
		portfolioID, ownerID, month, year,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding owner report: %w", err)
	}
	return r, nil
}

// ListBatchReports returns the monthly reports of a batch ordered by owner name.
func ListBatchReports(ctx context.Context, q Querier, batchID string) ([]model.Report, error) {
	rows, err := q.QueryContext(ctx,
		reportSelect+` WHERE r.batch_id = ? ORDER BY o.name, r.id`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing batch reports: %w", err)
	}
	defer rows.Close()

	return scanReports(rows)
}

// ReparentReport moves an existing report into batch and renames it. The
// cached file is dropped so the next download regenerates it.
func ReparentReport(ctx context.Context, q Querier, reportID int64, batchID, name string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE reports
		 SET batch_id = ?, name = ?, file_path = NULL, sent = 0, sent_at = NULL,
		     generated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		batchID, name, reportID,
	)
	if err != nil {
		return fmt.Errorf("reparenting report: %w", err)
	}
	return nil
}

// SetReportFile records where a report's PDF lives.
func SetReportFile(ctx context.Context, q Querier, id int64, path string) error {
	_, err := q.ExecContext(ctx, `UPDATE reports SET file_path = ? WHERE id = ?`, nullString(path), id)
	if err != nil {
		return fmt.Errorf("setting report file: %w", err)
	}
	return nil
}

// MarkReportSent flags a report as emailed.
func MarkReportSent(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE reports SET sent = 1, sent_at = CURRENT_TIMESTAMP WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("marking report sent: %w", err)
	}
	return nil
}

// DeleteReport removes one report row.
func DeleteReport(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}
