package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMinQuantity is the reorder threshold used when an item has none set.
const DefaultMinQuantity = 10

// InventoryItem is a stocked consumable. Quantity is not floored and may go negative.
type InventoryItem struct {
	ID            int64           `json:"id"`
	PortfolioID   int64           `json:"portfolio_id"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	DefaultMarkup decimal.Decimal `json:"default_markup"`
	Quantity      int             `json:"quantity"`
	MinQuantity   *int            `json:"min_quantity,omitempty"`
	Deleted       bool            `json:"deleted"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

// Threshold returns the low-stock threshold for the item.
func (i *InventoryItem) Threshold() int {
	if i.MinQuantity == nil {
		return DefaultMinQuantity
	}
	return *i.MinQuantity
}

// IsLow reports whether the quantity is at or below the threshold.
func (i *InventoryItem) IsLow() bool {
	return i.Quantity <= i.Threshold()
}

// Refill is one recorded stock addition.
type Refill struct {
	ID          int64               `json:"id"`
	InventoryID int64               `json:"inventory_id"`
	Quantity    int                 `json:"quantity"`
	Cost        decimal.NullDecimal `json:"cost"`
	Notes       string              `json:"notes,omitempty"`
	RefilledAt  time.Time           `json:"refilled_at"`
	RefilledBy  *int64              `json:"refilled_by,omitempty"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty"`
}

// ShoppingListEntry is a low-stock item with a suggested order quantity.
type ShoppingListEntry struct {
	Item      InventoryItem `json:"item"`
	Suggested int           `json:"suggested_quantity"`
}
