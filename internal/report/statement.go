package report

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/ledger"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// Statement is everything a generator needs to render one owner's month.
type Statement struct {
	ReportID  int64
	Title     string
	Month     int
	Year      int
	Notes     string
	Portfolio *model.Portfolio
	Logo      []byte // JPEG, may be nil
	Owner     *model.Owner
	Listings  []model.Listing
	Expenses  []model.Expense
	Items     []model.InventoryItem // every item the expenses reference, deleted or not

	TotalCost   decimal.Decimal
	TotalBilled decimal.Decimal
}

// TotalMarkup is the amount billed on top of cost.
func (s *Statement) TotalMarkup() decimal.Decimal {
	return s.TotalBilled.Sub(s.TotalCost)
}

// ItemUsage returns how many units of each referenced item the month used.
func (s *Statement) ItemUsage() map[int64]int {
	usage := make(map[int64]int, len(s.Items))
	for _, e := range s.Expenses {
		if e.InventoryID != nil {
			usage[*e.InventoryID] += e.UsedQuantity()
		}
	}
	return usage
}

// LoadStatement aggregates a report's data: the owner, their expenses in
// [first of month, first of next month), their listings and the items used.
func LoadStatement(ctx context.Context, q store.Querier, r *model.Report) (*Statement, error) {
	if r.OwnerID == 0 || r.Month == 0 || r.Year == 0 {
		return nil, model.Invalid("report", "report has no owner or period")
	}

	owner, err := store.GetOwner(ctx, q, r.OwnerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("owner %d: %w", r.OwnerID, model.ErrNotFound)
	}

	portfolio, err := store.GetPortfolio(ctx, q, owner.PortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		return nil, fmt.Errorf("portfolio %d: %w", owner.PortfolioID, model.ErrNotFound)
	}
	logo, _, err := store.GetPortfolioLogo(ctx, q, portfolio.ID)
	if err != nil {
		return nil, err
	}

	from, to := ledger.MonthRange(r.Year, r.Month)
	expenses, err := store.ListExpenses(ctx, q, store.ExpenseFilter{OwnerID: owner.ID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	// Statements read oldest first.
	slices.Reverse(expenses)

	listings, err := store.ListListings(ctx, q, nil, owner.ID)
	if err != nil {
		return nil, err
	}

	var itemIDs []int64
	for _, e := range expenses {
		if e.InventoryID != nil && !slices.Contains(itemIDs, *e.InventoryID) {
			itemIDs = append(itemIDs, *e.InventoryID)
		}
	}
	items, err := store.ListInventoryItemsByID(ctx, q, itemIDs)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		ReportID:  r.ID,
		Title:     r.Name,
		Month:     r.Month,
		Year:      r.Year,
		Notes:     r.Notes,
		Portfolio: portfolio,
		Logo:      logo,
		Owner:     owner,
		Listings:  listings,
		Expenses:  expenses,
		Items:     items,
	}
	for _, e := range expenses {
		st.TotalCost = st.TotalCost.Add(e.TotalCost)
		st.TotalBilled = st.TotalBilled.Add(e.BilledAmount)
	}
	return st, nil
}
