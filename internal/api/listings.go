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

// ListingsHandler handles listing endpoints.
type ListingsHandler struct {
	DB *sql.DB
}

type listingRequest struct {
	OwnerID int64  `json:"owner_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func loadListing(ctx context.Context, q store.Querier, p access.Principal, id int64) (*model.Listing, error) {
	l, err := store.GetListing(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if l == nil || l.DeletedAt != nil {
		return nil, fmt.Errorf("listing %d: %w", id, model.ErrNotFound)
	}
	if err := access.Check(p, l.PortfolioID); err != nil {
		return nil, err
	}
	return l, nil
}

// List handles GET /api/listings. Supports ?owner_id= and ?portfolio_id=.
func (h *ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	requested, err := queryPortfolio(r)
	if err != nil {
		writeError(w, "", err)
		return
	}
	ownerID, err := queryInt(r, "owner_id")
	if err != nil {
		writeError(w, "", err)
		return
	}
	scope, err := access.Scope(principal(r), requested)
	if err != nil {
		writeError(w, "", err)
		return
	}

	listings, err := store.ListListings(r.Context(), h.DB, scope, ownerID)
	if err != nil {
		writeError(w, "failed to list listings", err)
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	jsonResponse(w, http.StatusOK, listings)
}

// Create handles POST /api/listings. The listing joins its owner's portfolio.
func (h *ListingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	verr := &model.ValidationError{}
	if req.OwnerID <= 0 {
		verr.Add("owner_id", "is required")
	}
	if req.Name == "" {
		verr.Add("name", "is required")
	}
	if err := verr.Err(); err != nil {
		writeError(w, "", err)
		return
	}

	p := principal(r)
	var listing *model.Listing
	err := store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		owner, err := loadOwner(r.Context(), tx, p, req.OwnerID)
		if err != nil {
			return err
		}
		listing, err = store.CreateListing(r.Context(), tx, owner.ID, req.Name, strings.TrimSpace(req.Address))
		if err != nil {
			return err
		}
		return logActivity(r.Context(), tx, p, listing.PortfolioID, model.ActionListingCreated,
			fmt.Sprintf("Created listing %q for %s", listing.Name, owner.Name))
	})
	if err != nil {
		writeError(w, "failed to create listing", err)
		return
	}

	slog.Info("listing created", "user", p.Username, "listing", listing.Name, "owner_id", listing.OwnerID)
	jsonResponse(w, http.StatusCreated, listing)
}

// Get handles GET /api/listings/{id}.
func (h *ListingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	listing, err := loadListing(r.Context(), h.DB, principal(r), id)
	if err != nil {
		writeError(w, "failed to get listing", err)
		return
	}
	jsonResponse(w, http.StatusOK, listing)
}

// Update handles PUT /api/listings/{id}. The owner cannot be changed.
func (h *ListingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req listingRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, "", model.Invalid("name", "is required"))
		return
	}

	p := principal(r)
	var listing *model.Listing
	err := store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		old, err := loadListing(r.Context(), tx, p, id)
		if err != nil {
			return err
		}
		if req.OwnerID != 0 && req.OwnerID != old.OwnerID {
			return model.Invalid("owner_id", "cannot be changed")
		}
		if err := store.UpdateListing(r.Context(), tx, id, req.Name, strings.TrimSpace(req.Address)); err != nil {
			return err
		}
		if err := logActivity(r.Context(), tx, p, old.PortfolioID, model.ActionListingUpdated,
			fmt.Sprintf("Updated listing %q", req.Name)); err != nil {
			return err
		}
		listing, err = store.GetListing(r.Context(), tx, id)
		return err
	})
	if err != nil {
		writeError(w, "failed to update listing", err)
		return
	}

	slog.Info("listing updated", "user", p.Username, "listing", listing.Name)
	jsonResponse(w, http.StatusOK, listing)
}

// Delete handles DELETE /api/listings/{id}.
func (h *ListingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	p := principal(r)
	var name string
	err := store.WithTx(r.Context(), h.DB, func(tx *sql.Tx) error {
		listing, err := loadListing(r.Context(), tx, p, id)
		if err != nil {
			return err
		}
		name = listing.Name
		if err := store.DeleteListing(r.Context(), tx, id); err != nil {
			return err
		}
		return logActivity(r.Context(), tx, p, listing.PortfolioID, model.ActionListingDeleted,
			fmt.Sprintf("Deleted listing %q", listing.Name))
	})
	if err != nil {
		writeError(w, "failed to delete listing", err)
		return
	}

	slog.Info("listing deleted", "user", p.Username, "listing", name)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "listing deleted"})
}
