package model

import "time"

// Report kinds as exposed to the dashboard.
const (
	ReportTypeBatch   = "batch"
	ReportTypeMonthly = "monthly"
)

// Batch is a named group of per-owner monthly reports generated together.
type Batch struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PortfolioID int64     `json:"portfolio_id"`
	Name        string    `json:"name"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`

	// Populated by listings.
	ReportCount int `json:"report_count"`
	SentCount   int `json:"sent_count"`
}

// Report is one owner's monthly statement inside a batch.
type Report struct {
	ID          int64      `json:"id"`
	Type        string     `json:"type"`
	BatchID     string     `json:"batch_id"`
	PortfolioID int64      `json:"portfolio_id"`
	OwnerID     int64      `json:"owner_id"`
	Month       int        `json:"month"`
	Year        int        `json:"year"`
	Name        string     `json:"name"`
	FilePath    string     `json:"-"`
	HasFile     bool       `json:"has_file"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Notes       string     `json:"notes"`
	GeneratedAt time.Time  `json:"generated_at"`

	// Joined fields (not always populated).
	OwnerName  string `json:"owner_name,omitempty"`
	OwnerEmail string `json:"owner_email,omitempty"`
}
