package store

import (
	"context"
	"testing"

	"github.com/erazemk/najem/internal/db"
	"github.com/erazemk/najem/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	portfolio, _ := CreatePortfolio(ctx, database, "Coast")

	user, err := CreateUser(ctx, database, "testuser", "hash123", model.RoleStandardUser, &portfolio.ID)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Role != model.RoleStandardUser {
		t.Errorf("expected role 'standard_user', got %q", user.Role)
	}
	if user.PortfolioID == nil || *user.PortfolioID != portfolio.ID {
		t.Errorf("expected portfolio %d, got %v", portfolio.ID, user.PortfolioID)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "alice", "hash", model.RoleAdministrator, nil)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil || user.Username != "alice" {
		t.Fatalf("expected alice, got %+v", user)
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestDeletedUsernameCanBeReused(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, _ := CreateUser(ctx, database, "reuse", "hash", model.RoleStandardUser, nil)
	if err := DeleteUser(ctx, database, first.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	if _, err := CreateUser(ctx, database, "reuse", "hash", model.RoleStandardUser, nil); err != nil {
		t.Fatalf("expected username reuse after delete, got %v", err)
	}

	users, _ := ListUsers(ctx, database)
	if len(users) != 1 {
		t.Errorf("expected 1 active user, got %d", len(users))
	}
}

func TestUpdateUserRoleAndPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	portfolio, _ := CreatePortfolio(ctx, database, "Coast")

	user, _ := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleStandardUser, nil)
	UpdateUser(ctx, database, user.ID, model.RoleStandardAdmin, &portfolio.ID)
	UpdateUserPassword(ctx, database, user.ID, "newhash")

	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleStandardAdmin {
		t.Errorf("expected role standard_admin, got %q", got.Role)
	}
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
