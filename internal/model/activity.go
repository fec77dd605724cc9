package model

import "time"

// ActivityLog is one append-only audit entry.
type ActivityLog struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id,omitempty"`
	PortfolioID *int64    `json:"portfolio_id,omitempty"`
	Action      string    `json:"action"`
	Details     string    `json:"details"`
	CreatedAt   time.Time `json:"timestamp"`

	// Joined fields (not always populated).
	Username string `json:"username,omitempty"`
}

// Audit action codes. Log consumers match on these strings.
const (
	ActionExpenseCreated        = "EXPENSE_CREATED"
	ActionExpenseUpdated        = "EXPENSE_UPDATED"
	ActionExpenseDeleted        = "EXPENSE_DELETED"
	ActionInventoryCreated      = "INVENTORY_CREATED"
	ActionInventoryUpdated      = "INVENTORY_UPDATED"
	ActionInventoryDeleted      = "INVENTORY_DELETED"
	ActionInventoryRestored     = "INVENTORY_RESTORED"
	ActionInventoryAdjusted     = "INVENTORY_ADJUSTED"
	ActionInventoryRefilled     = "INVENTORY_REFILLED"
	ActionLowInventoryAlert     = "LOW_INVENTORY_ALERT"
	ActionOwnerCreated          = "OWNER_CREATED"
	ActionOwnerUpdated          = "OWNER_UPDATED"
	ActionOwnerDeleted          = "OWNER_DELETED"
	ActionListingCreated        = "LISTING_CREATED"
	ActionListingUpdated        = "LISTING_UPDATED"
	ActionListingDeleted        = "LISTING_DELETED"
	ActionBatchReportsGenerated = "BATCH_REPORTS_GENERATED"
	ActionReportDownloaded      = "REPORT_DOWNLOADED"
	ActionBatchDownloaded       = "BATCH_DOWNLOADED"
	ActionReportSent            = "REPORT_SENT"
	ActionBatchReportsSent      = "BATCH_REPORTS_SENT"
	ActionReportDeleted         = "REPORT_DELETED"
	ActionBatchReportsDeleted   = "BATCH_REPORTS_DELETED"
	ActionBatchNotesUpdated     = "BATCH_NOTES_UPDATED"
)
