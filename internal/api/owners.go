package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/najem/internal/access"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/store"
)

// OwnersHandler handles owner endpoints.
type OwnersHandler struct {
	DB *sql.DB
}

type ownerRequest struct {
	PortfolioID *int64 `json:"portfolio_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

func (req *ownerRequest) validate() error {
	verr := &model.ValidationError{}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		verr.Add("name", "is required")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		verr.Add("email", "is not a valid address")
	}
	return verr.Err()
}

// logActivity writes an audit row for a supporting CRUD change.
func logActivity(ctx context.Context, q store.Querier, p access.Principal, portfolioID int64, action, details string) error {
	return store.LogActivity(ctx, q, p.UserRef(), &portfolioID, action, details)
}

// loadOwner returns an active owner the principal may see.
func loadOwner(ctx context.Context, q store.Querier, p access.Principal, id int64) (*model.Owner, error) {
	o, err := store.GetOwner(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if o == nil || o.DeletedAt != nil {
		return nil, fmt.Errorf("owner %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, o.PortfolioID); err != nil {
		return nil, err
	}
	return o, nil
}

// List handles GET /api/owners.
func (h *OwnersHandler) List(w http.ResponseWriter, r *http.Request) {
	requested, err := queryPortfolio(r)
	if err != nil {
		writeError(w, "", err)
		return
	}
	scope, err := access.Scope(principal(r), requested)
	if err != nil {
		writeError(w, "", err)
		return
	}

	owners, err := store.ListOwners(r.Context(), h.DB, scope)
	if err != nil {
		writeError(w, "failed to list owners", err)
		return
	}
	if owners == nil {
		owners = []model.Owner{}
	}
	jsonResponse(w, http.StatusOK, owners)
}

// Create handles POST /api/owners.
func (h *OwnersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, "", err)
		return
	}

	p := principal(r)
	portfolioID, err := access.ResolveExisting(r.Context(), h.DB, p, req.PortfolioID)
	if err != nil {
		writeError(w, "", err)
		return
	}

	var owner *model.Owner
	err = store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		var err error
		owner, err = store.CreateOwner(r.Context(), tx, portfolioID, req.Name, req.Email, req.Phone)
		if err != nil {
			return err
		}
		return logActivity(r.Context(), tx, p, portfolioID, model.ActionOwnerCreated,
			fmt.Sprintf("Created owner %q", owner.Name))
	})
	if err != nil {
		writeError(w, "failed to create owner", err)
		return
	}

	slog.Info("owner created", "user", p.Username, "owner", owner.Name, "portfolio_id", portfolioID)
	jsonResponse(w, http.StatusCreated, owner)
}

// Get handles GET /api/owners/{id}.
func (h *OwnersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	owner, err := loadOwner(r.Context(), h.DB, principal(r), id)
	if err != nil {
		writeError(w, "failed to get owner", err)
		return
	}
	jsonResponse(w, http.StatusOK, owner)
}

// Update handles PUT /api/owners/{id}.
func (h *OwnersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, "", err)
		return
	}

	p := principal(r)
	var owner *model.Owner
	err := store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		old, err := loadOwner(r.Context(), tx, p, id)
		if err != nil {
			return err
		}
		if err := store.UpdateOwner(r.Context(), tx, id, req.Name, req.Email, req.Phone); err != nil {
			return err
		}
		if err := logActivity(r.Context(), tx, p, old.PortfolioID, model.ActionOwnerUpdated,
			fmt.Sprintf("Updated owner %q", req.Name)); err != nil {
			return err
		}
		owner, err = store.GetOwner(r.Context(), tx, id)
		return err
	})
	if err != nil {
		writeError(w, "failed to update owner", err)
		return
	}

	slog.Info("owner updated", "user", p.Username, "owner", owner.Name)
	jsonResponse(w, http.StatusOK, owner)
}

// Delete handles DELETE /api/owners/{id}.
func (h *OwnersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	var name string
	err := store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		owner, err := loadOwner(r.Context(), tx, p, id)
		if err != nil {
			return err
		}
		name = owner.Name
		if err := store.DeleteOwner(r.Context(), tx, id); err != nil {
			return err
		}
		return logActivity(r.Context(), tx, p, owner.PortfolioID, model.ActionOwnerDeleted,
			fmt.Sprintf("Deleted owner %q", owner.Name))
	})
	if err != nil {
		writeError(w, "failed to delete owner", err)
		return
	}

	slog.Info("owner deleted", "user", p.Username, "owner", name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "owner deleted"})
}

// Listings handles GET /api/owners/{id}/listings.
func (h *OwnersHandler) Listings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	owner, err := loadOwner(r.Context(), h.DB, principal(r), id)
	if err != nil {
		writeError(w, "failed to get owner", err)
		return
	}

	listings, err := store.ListListings(r.Context(), h.DB, &owner.PortfolioID, owner.ID)
	if err != nil {
		writeError(w, "failed to list listings", err)
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	jsonResponse(w, http.StatusOK, listings)
}
