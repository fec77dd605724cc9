// Package access implements the portfolio tenancy guard. Administrators
// cross every portfolio boundary; everyone else is confined to their own.
package access

import (
	"context"
	"fmt"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// Principal is the authenticated caller of a service operation.
type Principal struct {
	UserID      int64
	Username    string
	Role        string
	PortfolioID *int64
}

// FromUser builds a principal from a stored user.
func FromUser(u *model.User) Principal {
	if u == nil {
		return Principal{}
	}
	return Principal{
		UserID:      u.ID,
		Username:    u.Username,
		Role:        u.Role,
		PortfolioID: u.PortfolioID,
	}
}

// IsAdministrator reports whether p bypasses portfolio scoping.
func (p Principal) IsAdministrator() bool {
	return p.Role == model.RoleAdministrator
}

// UserRef returns the user ID for audit rows, or nil for system actions.
func (p Principal) UserRef() *int64 {
	if p.UserID == 0 {
		return nil
	}
	id := p.UserID
	return &id
}

// CanAccess reports whether p may touch data in the given portfolio.
func CanAccess(p Principal, portfolioID int64) bool {
	if p.IsAdministrator() {
		return true
	}
	return p.PortfolioID != nil && *p.PortfolioID == portfolioID
}

// Check returns model.ErrForbidden when p may not touch the portfolio.
func Check(p Principal, portfolioID int64) error {
	if !CanAccess(p, portfolioID) {
		return fmt.Errorf("portfolio %d: %w", portfolioID, model.ErrForbidden)
	}
	return nil
}

// RequireRole returns model.ErrForbidden when p is below minimum.
func RequireRole(p Principal, minimum string) error {
	if !model.RoleAtLeast(p.Role, minimum) {
		return fmt.Errorf("role %q: %w", p.Role, model.ErrForbidden)
	}
	return nil
}

// ResolvePortfolio picks the portfolio a create operation targets. Non-admins
// always write to their own portfolio; administrators must name one.
func ResolvePortfolio(p Principal, requested *int64) (int64, error) {
	if p.IsAdministrator() {
		if requested == nil || *requested <= 0 {
			return 0, model.Invalid("portfolio_id", "required for administrators")
		}
		return *requested, nil
	}
	if p.PortfolioID == nil {
		return 0, fmt.Errorf("user has no portfolio: %w", model.ErrForbidden)
	}
	if requested != nil && *requested != *p.PortfolioID {
		return 0, Check(p, *requested)
	}
	return *p.PortfolioID, nil
}

// ResolveExisting is ResolvePortfolio followed by a lookup: the resolved
// portfolio must exist and not be deleted.
func ResolveExisting(ctx context.Context, q store.Querier, p Principal, requested *int64) (int64, error) {
	id, err := ResolvePortfolio(p, requested)
	if err != nil {
		return 0, err
	}
	portfolio, err := store.GetPortfolio(ctx, q, id)
	if err != nil {
		return 0, err
	}
	if portfolio == nil || portfolio.DeletedAt != nil {
		return 0, model.Invalid("portfolio_id", "portfolio does not exist")
	}
	return id, nil
}

// Scope returns the portfolio filter for list operations: nil means all
// portfolios (administrators without a filter).
func Scope(p Principal, requested *int64) (*int64, error) {
	if p.IsAdministrator() {
		return requested, nil
	}
	if p.PortfolioID == nil {
		return nil, fmt.Errorf("user has no portfolio: %w", model.ErrForbidden)
	}
	if requested != nil && *requested != *p.PortfolioID {
		return nil, Check(p, *requested)
	}
	id := *p.PortfolioID
	return &id, nil
}
