package api

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/erazemk/najem/internal/ledger"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/report"
)

// Deps are the services the router dispatches to.
type Deps struct {
	DB          *sql.DB
	JWTSecret   string
	Ledger      *ledger.Service
	Reports     *report.Service
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	portfoliosHandler := &PortfoliosHandler{DB: d.DB}
	ownersHandler := &OwnersHandler{DB: d.DB}
	listingsHandler := &ListingsHandler{DB: d.DB}
	inventoryHandler := &InventoryHandler{Ledger: d.Ledger}
	expensesHandler := &ExpensesHandler{Ledger: d.Ledger}
	reportsHandler := &ReportsHandler{Reports: d.Reports}
	activityHandler := &ActivityHandler{DB: d.DB}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireAdmin := RequireRole(model.RoleAdministrator)
	requireStdAdmin := RequireRole(model.RoleStandardAdmin)

	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }
	stdAdmin := func(h http.HandlerFunc) http.Handler { return authMW(requireStdAdmin(h)) }

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Session.
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Portfolios (administrator).
	mux.Handle("GET /api/portfolios", admin(portfoliosHandler.List))
	mux.Handle("POST /api/portfolios", admin(portfoliosHandler.Create))
	mux.Handle("GET /api/portfolios/{id}", admin(portfoliosHandler.Get))
	mux.Handle("PUT /api/portfolios/{id}", admin(portfoliosHandler.Update))
	mux.Handle("DELETE /api/portfolios/{id}", admin(portfoliosHandler.Delete))
	mux.Handle("PUT /api/portfolios/{id}/logo", admin(portfoliosHandler.UploadLogo))
	mux.Handle("GET /api/portfolios/{id}/logo", admin(portfoliosHandler.GetLogo))

	// Users (administrator).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", admin(usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Owners: read (all roles), write (standard_admin+).
	mux.Handle("GET /api/owners", authed(ownersHandler.List))
	mux.Handle("POST /api/owners", stdAdmin(ownersHandler.Create))
	mux.Handle("GET /api/owners/{id}", authed(ownersHandler.Get))
	mux.Handle("PUT /api/owners/{id}", stdAdmin(ownersHandler.Update))
	mux.Handle("DELETE /api/owners/{id}", stdAdmin(ownersHandler.Delete))
	mux.Handle("GET /api/owners/{id}/listings", authed(ownersHandler.Listings))

	// Listings: read (all roles), write (standard_admin+).
	mux.Handle("GET /api/listings", authed(listingsHandler.List))
	mux.Handle("POST /api/listings", stdAdmin(listingsHandler.Create))
	mux.Handle("GET /api/listings/{id}", authed(listingsHandler.Get))
	mux.Handle("PUT /api/listings/{id}", stdAdmin(listingsHandler.Update))
	mux.Handle("DELETE /api/listings/{id}", stdAdmin(listingsHandler.Delete))

	// Inventory: item writes (standard_admin+), refills (all roles).
	mux.Handle("GET /api/inventory", authed(inventoryHandler.List))
	mux.Handle("POST /api/inventory", stdAdmin(inventoryHandler.Create))
	mux.Handle("GET /api/inventory/shopping-list", authed(inventoryHandler.ShoppingList))
	mux.Handle("POST /api/inventory/refill", authed(inventoryHandler.Refill))
	mux.Handle("POST /api/inventory/batch-refill", authed(inventoryHandler.BatchRefill))
	mux.Handle("GET /api/inventory/{id}", authed(inventoryHandler.Get))
	mux.Handle("PUT /api/inventory/{id}", stdAdmin(inventoryHandler.Update))
	mux.Handle("DELETE /api/inventory/{id}", stdAdmin(inventoryHandler.Delete))
	mux.Handle("GET /api/inventory/{id}/refills", authed(inventoryHandler.Refills))

	// Expenses (all roles).
	mux.Handle("GET /api/expenses", authed(expensesHandler.List))
	mux.Handle("POST /api/expenses", authed(expensesHandler.Create))
	mux.Handle("GET /api/expenses/{id}", authed(expensesHandler.Get))
	mux.Handle("PUT /api/expenses/{id}", authed(expensesHandler.Update))
	mux.Handle("DELETE /api/expenses/{id}", authed(expensesHandler.Delete))

	// Reports: read and download (all roles), generate and distribute (standard_admin+).
	mux.Handle("GET /api/reports", authed(reportsHandler.List))
	mux.Handle("POST /api/reports/generate", stdAdmin(reportsHandler.Generate))
	// GET /api/reports/{id}/download and GET /api/reports/batch/{batchId}
	// overlap as patterns, so one route dispatches both.
	mux.Handle("GET /api/reports/{id}/{action}", authed(reportsHandler.GetByPath))
	mux.Handle("DELETE /api/reports/{id}", stdAdmin(reportsHandler.Delete))
	mux.Handle("POST /api/reports/{id}/email", stdAdmin(reportsHandler.Email))
	mux.Handle("GET /api/reports/batch/{batchId}/notes", authed(reportsHandler.GetNotes))
	mux.Handle("PUT /api/reports/batch/{batchId}/notes", stdAdmin(reportsHandler.UpdateNotes))
	mux.Handle("GET /api/reports/batch/{batchId}/download", authed(reportsHandler.DownloadBatch))
	mux.Handle("POST /api/reports/batch/{batchId}/email", stdAdmin(reportsHandler.EmailBatch))
	mux.Handle("DELETE /api/reports/batch/{batchId}", stdAdmin(reportsHandler.DeleteBatch))

	// Activity log (standard_admin+).
	mux.Handle("GET /api/activity", stdAdmin(activityHandler.List))

	c := cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID", "X-Reports-Included", "X-Reports-Skipped"},
		AllowCredentials: true,
	})

	return c.Handler(RequestIDMiddleware(LoggingMiddleware(MetricsMiddleware(mux))))
}
