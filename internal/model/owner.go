package model

import "time"

// Owner is a property owner billed for expenses.
type Owner struct {
	ID          int64      `json:"id"`
	PortfolioID int64      `json:"portfolio_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Listing is a rentable unit belonging to one owner.
type Listing struct {
	ID          int64      `json:"id"`
	PortfolioID int64      `json:"portfolio_id"`
	OwnerID     int64      `json:"owner_id"`
	Name        string     `json:"name"`
	Address     string     `json:"address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	OwnerName string `json:"owner_name,omitempty"`
}
