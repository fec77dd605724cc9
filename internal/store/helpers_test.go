package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/najem/internal/model"
)

// fixture is a portfolio with one owner and one listing.
type fixture struct {
	portfolio *model.Portfolio
	owner     *model.Owner
	listing   *model.Listing
}

func newFixture(t *testing.T, database *sql.DB) fixture {
	t.Helper()
	ctx := context.Background()

	portfolio, err := CreatePortfolio(ctx, database, "Coast")
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	owner, err := CreateOwner(ctx, database, portfolio.ID, "Ana", "ana@example.com", "")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	listing, err := CreateListing(ctx, database, owner.ID, "Seaside Flat", "Obala 1")
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return fixture{portfolio: portfolio, owner: owner, listing: listing}
}

func newItem(t *testing.T, database *sql.DB, portfolioID int64, name string, quantity int) *model.InventoryItem {
	t.Helper()
	item, err := CreateInventoryItem(context.Background(), database, portfolioID, InventoryFields{
		Name:          name,
		CostPrice:     decimal.RequireFromString("2.50"),
		DefaultMarkup: decimal.NewFromInt(20),
	}, quantity)
	if err != nil {
		t.Fatalf("CreateInventoryItem: %v", err)
	}
	return item
}
