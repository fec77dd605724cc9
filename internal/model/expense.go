package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a billable cost charged to an owner through a listing.
type Expense struct {
	ID            int64           `json:"id"`
	PortfolioID   int64           `json:"portfolio_id"`
	ListingID     int64           `json:"listing_id"`
	OwnerID       int64           `json:"owner_id"`
	InventoryID   *int64          `json:"inventory_id,omitempty"`
	QuantityUsed  *int            `json:"quantity_used,omitempty"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	BilledAmount  decimal.Decimal `json:"billed_amount"`
	Notes         string          `json:"notes,omitempty"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	ListingName   string `json:"listing_name,omitempty"`
	OwnerName     string `json:"owner_name,omitempty"`
	InventoryName string `json:"inventory_name,omitempty"`
}

// BilledFor returns totalCost × (1 + markupPercent/100), rounded to cents.
func BilledFor(totalCost, markupPercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(decimal.NewFromInt(100)))
	return totalCost.Mul(factor).Round(2)
}

// UsedQuantity returns QuantityUsed or zero.
func (e *Expense) UsedQuantity() int {
	if e.QuantityUsed == nil {
		return 0
	}
	return *e.QuantityUsed
}
