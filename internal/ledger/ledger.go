// Package ledger keeps expenses and inventory quantities consistent. Every
// mutation runs as one transaction: the expense write, each quantity
// adjustment and the audit rows commit or roll back together.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/metrics"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// Service applies expense and inventory operations on behalf of a principal.
type Service struct {
	DB *sql.DB

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// New creates a ledger service.
func New(db *sql.DB) *Service {
	return &Service{DB: db, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func audit(ctx context.Context, q store.Querier, p access.Principal, portfolioID int64, action, format string, args ...any) error {
	return store.LogActivity(ctx, q, p.UserRef(), &portfolioID, action, fmt.Sprintf(format, args...))
}

// alertIfLow records a LOW_INVENTORY_ALERT when item is at or below its threshold.
func alertIfLow(ctx context.Context, q store.Querier, p access.Principal, item *model.InventoryItem) error {
	if item == nil || !item.IsLow() {
		return nil
	}
	metrics.LowStockAlerts.Inc()
	return audit(ctx, q, p, item.PortfolioID, model.ActionLowInventoryAlert,
		"%s is low: %d left (minimum %d)", item.Name, item.Quantity, item.Threshold())
}

// MonthRange returns the half-open interval [first instant of month,
// first instant of the next month) in UTC.
func MonthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// ValidPeriod validates a month/year pair.
func ValidPeriod(month, year int) error {
	verr := &model.ValidationError{}
	if month < 1 || month > 12 {
		verr.Add("month", "must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		verr.Add("year", "must be a four-digit year")
	}
	return verr.Err()
}
