package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najem/internal/auth"
	"github.com/erazemk/najem/internal/db"
	"github.com/erazemk/najem/internal/ledger"
	"github.com/erazemk/najem/internal/mail"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/report"
	"github.com/erazemk/najem/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	token  string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)

	reports, err := report.New(database, report.PDFGenerator{Currency: "EUR"}, mail.LogMailer{}, t.TempDir(), 0)
	if err != nil {
		t.Fatalf("report.New: %v", err)
	}
	t.Cleanup(reports.Cleaner.Wait)

	router := NewRouter(Deps{
		DB:        database,
		JWTSecret: testJWTSecret,
		Ledger:    ledger.New(database),
		Reports:   reports,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	// Create administrator.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(ctx, database, "admin", string(hash), model.RoleAdministrator, nil); err != nil {
		t.Fatalf("creating admin: %v", err)
	}

	// Get token.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}

	return &testEnv{server: server, db: database, token: loginResp.Token}
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call sends an authenticated JSON request, decodes the response into out
// when given, and returns the status code.
func (e *testEnv) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

// userToken creates a user directly in the store and returns a token for it.
func (e *testEnv) userToken(t *testing.T, username, role string, portfolioID *int64) string {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	u, err := store.CreateUser(context.Background(), e.db, username, string(hash), role, portfolioID)
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	token, err := auth.GenerateToken(testJWTSecret, u.ID, u.Username, u.Role)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func (e *testEnv) createPortfolio(t *testing.T, name string) int64 {
	t.Helper()
	var p model.Portfolio
	if code := e.call(t, "POST", "/api/portfolios", e.token, map[string]string{"name": name}, &p); code != http.StatusCreated {
		t.Fatalf("creating portfolio: %d", code)
	}
	return p.ID
}

func (e *testEnv) createOwner(t *testing.T, portfolioID int64, name, email string) int64 {
	t.Helper()
	var o model.Owner
	code := e.call(t, "POST", "/api/owners", e.token, map[string]any{
		"portfolio_id": portfolioID, "name": name, "email": email,
	}, &o)
	if code != http.StatusCreated {
		t.Fatalf("creating owner: %d", code)
	}
	return o.ID
}

func (e *testEnv) createListing(t *testing.T, ownerID int64, name string) int64 {
	t.Helper()
	var l model.Listing
	code := e.call(t, "POST", "/api/listings", e.token, map[string]any{"owner_id": ownerID, "name": name}, &l)
	if code != http.StatusCreated {
		t.Fatalf("creating listing: %d", code)
	}
	return l.ID
}

func (e *testEnv) createItem(t *testing.T, portfolioID int64, name string, quantity, minQuantity int) int64 {
	t.Helper()
	var item model.InventoryItem
	code := e.call(t, "POST", "/api/inventory", e.token, map[string]any{
		"portfolio_id":   portfolioID,
		"name":           name,
		"cost_price":     "2.00",
		"default_markup": "15",
		"quantity":       quantity,
		"min_quantity":   minQuantity,
	}, &item)
	if code != http.StatusCreated {
		t.Fatalf("creating item: %d", code)
	}
	return item.ID
}

func (e *testEnv) itemQuantity(t *testing.T, id int64) int {
	t.Helper()
	var item model.InventoryItem
	if code := e.call(t, "GET", "/api/inventory/"+strconv.FormatInt(id, 10), e.token, nil, &item); code != http.StatusOK {
		t.Fatalf("getting item: %d", code)
	}
	return item.Quantity
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown users look the same as bad passwords.
	body, _ = json.Marshal(map[string]string{"username": "nobody", "password": "password"})
	resp, _ = http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	if code := env.call(t, "POST", "/api/auth/logout", env.token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", code)
	}
	if code := env.call(t, "GET", "/api/owners", env.token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", code)
	}
}

func TestChangePassword(t *testing.T) {
	env := setupTestServer(t)

	code := env.call(t, "PUT", "/api/auth/password", env.token, map[string]string{
		"current_password": "wrong", "new_password": "new-password",
	}, nil)
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong current password, got %d", code)
	}

	code = env.call(t, "PUT", "/api/auth/password", env.token, map[string]string{
		"current_password": "password", "new_password": "short",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for weak password, got %d", code)
	}

	code = env.call(t, "PUT", "/api/auth/password", env.token, map[string]string{
		"current_password": "password", "new_password": "new-password",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "new-password"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected login with new password to succeed, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := http.Get(env.server.URL + "/api/expenses")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, _ := http.Get(env.server.URL + path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200 for public %s, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	portfolioID := env.createPortfolio(t, "Coast")
	userToken := env.userToken(t, "user1", model.RoleStandardUser, &portfolioID)

	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{"GET", "/api/owners", nil, http.StatusOK},
		{"POST", "/api/owners", map[string]string{"name": "Acme"}, http.StatusForbidden},
		{"POST", "/api/inventory", map[string]string{"name": "Towels"}, http.StatusForbidden},
		{"POST", "/api/reports/generate", map[string]any{"month": 3, "year": 2024}, http.StatusForbidden},
		{"GET", "/api/activity", nil, http.StatusForbidden},
		{"GET", "/api/users", nil, http.StatusForbidden},
		{"GET", "/api/portfolios", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		if code := env.call(t, tt.method, tt.path, userToken, tt.body, nil); code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, code)
		}
	}
}

func TestUserManagement(t *testing.T) {
	env := setupTestServer(t)
	portfolioID := env.createPortfolio(t, "Coast")

	// Non-administrators need a portfolio.
	code := env.call(t, "POST", "/api/users", env.token, map[string]any{
		"username": "maja", "password": "password1", "role": model.RoleStandardAdmin,
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 without portfolio, got %d", code)
	}

	var user model.User
	code = env.call(t, "POST", "/api/users", env.token, map[string]any{
		"username": "maja", "password": "password1", "role": model.RoleStandardAdmin, "portfolio_id": portfolioID,
	}, &user)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if user.PortfolioID == nil || *user.PortfolioID != portfolioID {
		t.Errorf("expected portfolio %d, got %v", portfolioID, user.PortfolioID)
	}

	code = env.call(t, "POST", "/api/users", env.token, map[string]any{
		"username": "maja", "password": "password1", "role": model.RoleStandardUser, "portfolio_id": portfolioID,
	}, nil)
	if code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate username, got %d", code)
	}

	code = env.call(t, "PUT", "/api/users/"+strconv.FormatInt(user.ID, 10), env.token, map[string]any{
		"role": model.RoleAdministrator,
	}, &user)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if user.Role != model.RoleAdministrator || user.PortfolioID != nil {
		t.Errorf("expected administrator without portfolio, got %+v", user)
	}

	if code := env.call(t, "DELETE", "/api/users/"+strconv.FormatInt(user.ID, 10), env.token, nil, nil); code != http.StatusOK {
		t.Errorf("expected 200 from delete, got %d", code)
	}
	if code := env.call(t, "GET", "/api/users/"+strconv.FormatInt(user.ID, 10), env.token, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
}

func TestPortfolioScoping(t *testing.T) {
	env := setupTestServer(t)
	coast := env.createPortfolio(t, "Coast")
	alps := env.createPortfolio(t, "Alps")
	env.createOwner(t, coast, "Acme", "")
	foreign := env.createOwner(t, alps, "Bora", "")

	token := env.userToken(t, "coastadmin", model.RoleStandardAdmin, &coast)

	var owners []model.Owner
	if code := env.call(t, "GET", "/api/owners", token, nil, &owners); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(owners) != 1 || owners[0].Name != "Acme" {
		t.Errorf("expected only Acme, got %+v", owners)
	}

	path := "/api/owners/" + strconv.FormatInt(foreign, 10)
	if code := env.call(t, "GET", path, token, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign owner, got %d", code)
	}
	if code := env.call(t, "DELETE", path, token, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 deleting foreign owner, got %d", code)
	}
	if code := env.call(t, "GET", "/api/owners?portfolio_id="+strconv.FormatInt(alps, 10), token, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 filtering by foreign portfolio, got %d", code)
	}

	// Standard admins create in their own portfolio without naming it.
	var o model.Owner
	if code := env.call(t, "POST", "/api/owners", token, map[string]string{"name": "Cvet"}, &o); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if o.PortfolioID != coast {
		t.Errorf("expected owner in portfolio %d, got %d", coast, o.PortfolioID)
	}
}

func TestTokenFollowsStoredUser(t *testing.T) {
	env := setupTestServer(t)
	coast := env.createPortfolio(t, "Coast")
	alps := env.createPortfolio(t, "Alps")
	env.createItem(t, coast, "Soap", 10, 2)
	env.createItem(t, alps, "Towels", 10, 2)

	token := env.userToken(t, "mover", model.RoleStandardAdmin, &coast)
	mover, err := store.GetUserByUsername(context.Background(), env.db, "mover")
	if err != nil || mover == nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	path := "/api/users/" + strconv.FormatInt(mover.ID, 10)

	code := env.call(t, "PUT", path, env.token, map[string]any{
		"role": model.RoleStandardUser, "portfolio_id": alps,
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 moving user, got %d", code)
	}

	// The token issued before the move now sees the new portfolio and role.
	var items []model.InventoryItem
	if code := env.call(t, "GET", "/api/inventory", token, nil, &items); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(items) != 1 || items[0].Name != "Towels" {
		t.Errorf("expected only Towels, got %+v", items)
	}
	if code := env.call(t, "GET", "/api/inventory?portfolio_id="+strconv.FormatInt(coast, 10), token, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for old portfolio, got %d", code)
	}
	code = env.call(t, "POST", "/api/inventory", token, map[string]any{"name": "Mops", "quantity": 1}, nil)
	if code != http.StatusForbidden {
		t.Errorf("expected 403 after demotion, got %d", code)
	}

	if code := env.call(t, "DELETE", path, env.token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from delete, got %d", code)
	}
	if code := env.call(t, "GET", "/api/inventory", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for deleted user, got %d", code)
	}
}

func TestUnknownPortfolioRejected(t *testing.T) {
	env := setupTestServer(t)
	coast := env.createPortfolio(t, "Coast")
	owner := env.createOwner(t, coast, "Acme", "")

	for _, tc := range []struct {
		path string
		body map[string]any
	}{
		{"/api/inventory", map[string]any{"portfolio_id": 999, "name": "Soap", "quantity": 1}},
		{"/api/owners", map[string]any{"portfolio_id": 999, "name": "Bora"}},
		{"/api/reports/generate", map[string]any{"portfolio_id": 999, "month": 3, "year": 2024, "owner_ids": []int64{owner}}},
	} {
		var body errorBody
		if code := env.call(t, "POST", tc.path, env.token, tc.body, &body); code != http.StatusBadRequest {
			t.Errorf("POST %s: expected 400, got %d", tc.path, code)
		}
		if len(body.Fields) != 1 || body.Fields[0].Field != "portfolio_id" {
			t.Errorf("POST %s: expected portfolio_id field error, got %+v", tc.path, body)
		}
	}
}

func TestOwnerListingAudit(t *testing.T) {
	env := setupTestServer(t)
	portfolioID := env.createPortfolio(t, "Coast")
	ownerID := env.createOwner(t, portfolioID, "Acme", "acme@example.com")
	listingID := env.createListing(t, ownerID, "Unit 1")

	var listings []model.Listing
	env.call(t, "GET", "/api/owners/"+strconv.FormatInt(ownerID, 10)+"/listings", env.token, nil, &listings)
	if len(listings) != 1 || listings[0].OwnerName != "Acme" {
		t.Errorf("expected Unit 1 for Acme, got %+v", listings)
	}

	// Owners with active listings cannot be deleted.
	if code := env.call(t, "DELETE", "/api/owners/"+strconv.FormatInt(ownerID, 10), env.token, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 deleting owner with listings, got %d", code)
	}
	if code := env.call(t, "DELETE", "/api/listings/"+strconv.FormatInt(listingID, 10), env.token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 deleting listing, got %d", code)
	}
	if code := env.call(t, "DELETE", "/api/owners/"+strconv.FormatInt(ownerID, 10), env.token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 deleting owner, got %d", code)
	}

	var entries []model.ActivityLog
	env.call(t, "GET", "/api/activity?portfolio_id="+strconv.FormatInt(portfolioID, 10), env.token, nil, &entries)
	want := map[string]bool{
		model.ActionOwnerCreated: false, model.ActionListingCreated: false,
		model.ActionListingDeleted: false, model.ActionOwnerDeleted: false,
	}
	for _, e := range entries {
		if _, ok := want[e.Action]; ok {
			want[e.Action] = true
		}
	}
	for action, seen := range want {
		if !seen {
			t.Errorf("expected %s in activity log", action)
		}
	}
}

func TestExpenseInventoryFlow(t *testing.T) {
	env := setupTestServer(t)
	portfolioID := env.createPortfolio(t, "Coast")
	ownerID := env.createOwner(t, portfolioID, "Acme", "")
	listingID := env.createListing(t, ownerID, "Unit 1")
	towels := env.createItem(t, portfolioID, "Towels", 20, 10)

	var expense model.Expense
	code := env.call(t, "POST", "/api/expenses", env.token, map[string]any{
		"listing_id":     listingID,
		"inventory_id":   towels,
		"quantity_used":  12,
		"total_cost":     "24.00",
		"markup_percent": 15,
		"billed_amount":  27.60,
		"date":           "2024-03-10",
	}, &expense)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if expense.OwnerID != ownerID {
		t.Errorf("expected owner derived from listing, got %d", expense.OwnerID)
	}
	if got := env.itemQuantity(t, towels); got != 8 {
		t.Errorf("expected 8 towels after expense, got %d", got)
	}

	var alerts []model.ActivityLog
	env.call(t, "GET", "/api/activity?action="+model.ActionLowInventoryAlert, env.token, nil, &alerts)
	if len(alerts) != 1 {
		t.Errorf("expected 1 low inventory alert, got %d", len(alerts))
	}

	// Shopping list suggests 2×10 − 8.
	var list []model.ShoppingListEntry
	env.call(t, "GET", "/api/inventory/shopping-list?portfolio_id="+strconv.FormatInt(portfolioID, 10), env.token, nil, &list)
	if len(list) != 1 || list[0].Suggested != 12 {
		t.Errorf("expected Towels with suggestion 12, got %+v", list)
	}

	var expenses []model.Expense
	env.call(t, "GET", "/api/expenses?month=3&year=2024", env.token, nil, &expenses)
	if len(expenses) != 1 {
		t.Errorf("expected 1 expense in March 2024, got %d", len(expenses))
	}
	env.call(t, "GET", "/api/expenses?month=4&year=2024", env.token, nil, &expenses)
	if len(expenses) != 0 {
		t.Errorf("expected no expenses in April 2024, got %d", len(expenses))
	}

	path := "/api/expenses/" + strconv.FormatInt(expense.ID, 10)
	if code := env.call(t, "PUT", path, env.token, map[string]any{"quantity_used": 5}, &expense); code != http.StatusOK {
		t.Fatalf("expected 200 from update, got %d", code)
	}
	if got := env.itemQuantity(t, towels); got != 15 {
		t.Errorf("expected 15 towels after update, got %d", got)
	}

	if code := env.call(t, "DELETE", path, env.token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from delete, got %d", code)
	}
	if got := env.itemQuantity(t, towels); got != 20 {
		t.Errorf("expected 20 towels after delete, got %d", got)
	}
	if code := env.call(t, "GET", path, env.token, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for deleted expense, got %d", code)
	}
}

func TestValidationErrorBody(t *testing.T) {
	env := setupTestServer(t)

	var body struct {
		Error  string             `json:"error"`
		Code   string             `json:"code"`
		Fields []model.FieldError `json:"fields"`
	}
	code := env.call(t, "POST", "/api/expenses", env.token, map[string]any{"total_cost": -1}, &body)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if body.Code != "VALIDATION_FAILED" || len(body.Fields) == 0 {
		t.Errorf("expected field errors, got %+v", body)
	}
}

func TestBatchRefillAllOrNothing(t *testing.T) {
	env := setupTestServer(t)
	portfolioID := env.createPortfolio(t, "Coast")
	towels := env.createItem(t, portfolioID, "Towels", 5, 10)
	soap := env.createItem(t, portfolioID, "Soap", 5, 10)

	code := env.call(t, "POST", "/api/inventory/batch-refill", env.token, map[string]any{
		"entries": []map[string]any{
			{"inventory_id": towels, "quantity": 10},
			{"inventory_id": 9999, "quantity": 10},
			{"inventory_id": soap, "quantity": 10},
		},
	}, nil)
	if code == http.StatusOK {
		t.Fatal("expected batch with unknown item to fail")
	}
	if env.itemQuantity(t, towels) != 5 || env.itemQuantity(t, soap) != 5 {
		t.Error("expected no quantities to change")
	}

	code = env.call(t, "POST", "/api/inventory/batch-refill", env.token, map[string]any{
		"entries": []map[string]any{
			{"inventory_id": towels, "quantity": 10, "cost": "20.00"},
			{"inventory_id": soap, "quantity": 3},
		},
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if env.itemQuantity(t, towels) != 15 || env.itemQuantity(t, soap) != 8 {
		t.Error("expected both refills applied")
	}

	var refills []model.Refill
	env.call(t, "GET", "/api/inventory/"+strconv.FormatInt(towels, 10)+"/refills", env.token, nil, &refills)
	if len(refills) != 1 || refills[0].Quantity != 10 {
		t.Errorf("expected one refill of 10, got %+v", refills)
	}
}

func TestReportsFlow(t *testing.T) {
	env := setupTestServer(t)
	portfolioID := env.createPortfolio(t, "Coast")
	acme := env.createOwner(t, portfolioID, "Acme", "acme@example.com")
	bora := env.createOwner(t, portfolioID, "Bora", "")
	listingID := env.createListing(t, acme, "Unit 1")

	code := env.call(t, "POST", "/api/expenses", env.token, map[string]any{
		"listing_id": listingID, "total_cost": "40.00", "markup_percent": "10", "date": "2024-03-10",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("creating expense: %d", code)
	}

	var detail struct {
		Batch   model.Batch    `json:"batch"`
		Reports []model.Report `json:"reports"`
	}
	code = env.call(t, "POST", "/api/reports/generate", env.token, map[string]any{
		"portfolio_id": portfolioID, "month": 3, "year": 2024, "owner_ids": []int64{acme, bora}, "title": "March",
	}, &detail)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if len(detail.Reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(detail.Reports))
	}

	var acmeReport model.Report
	for _, r := range detail.Reports {
		if r.OwnerID == acme {
			acmeReport = r
		}
	}

	// Single PDF, rendered on first download.
	req, _ := authRequest("GET", env.server.URL+"/api/reports/"+strconv.FormatInt(acmeReport.ID, 10)+"/download", env.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("expected a PDF, got %d %q", resp.StatusCode, pdf[:min(len(pdf), 20)])
	}

	// Batch ZIP.
	batchPath := "/api/reports/batch/" + detail.Batch.ID
	req, _ = authRequest("GET", env.server.URL+batchPath+"/download", env.token, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("batch download: %v", err)
	}
	zip, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(zip, []byte("PK")) {
		t.Fatalf("expected a ZIP, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Reports-Included"); got != "2" {
		t.Errorf("expected 2 reports in archive, got %q", got)
	}

	// Batch email: Bora has no address.
	var summary report.EmailSummary
	if code := env.call(t, "POST", batchPath+"/email", env.token, nil, &summary); code != http.StatusOK {
		t.Fatalf("expected 200 from batch email, got %d", code)
	}
	if summary.Total != 2 || summary.Sent != 1 || summary.Failed != 1 {
		t.Errorf("expected 1 sent and 1 failed, got %+v", summary)
	}

	// Notes.
	if code := env.call(t, "PUT", batchPath+"/notes", env.token, map[string]string{"notes": "Checked"}, nil); code != http.StatusOK {
		t.Errorf("expected 200 from notes update, got %d", code)
	}
	var notes struct {
		Notes string `json:"notes"`
	}
	env.call(t, "GET", batchPath+"/notes", env.token, nil, &notes)
	if notes.Notes != "Checked" {
		t.Errorf("expected notes to round-trip, got %q", notes.Notes)
	}

	var batches []model.Batch
	env.call(t, "GET", "/api/reports", env.token, nil, &batches)
	if len(batches) != 1 || batches[0].SentCount != 1 {
		t.Errorf("expected one batch with one sent report, got %+v", batches)
	}

	if code := env.call(t, "DELETE", batchPath, env.token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from batch delete, got %d", code)
	}
	if code := env.call(t, "GET", batchPath, env.token, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 after batch delete, got %d", code)
	}
}

func TestReportErrors(t *testing.T) {
	env := setupTestServer(t)

	if code := env.call(t, "GET", "/api/reports/9999/download", env.token, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for missing report, got %d", code)
	}
	if code := env.call(t, "GET", "/api/reports/abc/download", env.token, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", code)
	}

	portfolioID := env.createPortfolio(t, "Coast")
	code := env.call(t, "POST", "/api/reports/generate", env.token, map[string]any{
		"portfolio_id": portfolioID, "month": 13, "year": 2024, "owner_ids": []int64{1},
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for month 13, got %d", code)
	}
}

func TestRequestID(t *testing.T) {
	env := setupTestServer(t)

	req, _ := http.NewRequest("GET", env.server.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("expected incoming request ID to be kept, got %q", got)
	}

	req, _ = http.NewRequest("GET", env.server.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id!")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got == "" || got == "bad id!" {
		t.Errorf("expected a fresh request ID, got %q", got)
	}
}
