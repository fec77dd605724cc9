package model

import "time"

// Portfolio is the tenancy boundary grouping owners, listings, inventory and reports.
type Portfolio struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	LogoMime  string     `json:"logo_mime,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
