package chefs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/homeplate-app/homeplate-backend/pkg/db/models"
)

func setupChefsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:chefs_%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS chefs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  stripe_account_id TEXT,
  charges_enabled INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	t.Cleanup(func() { db.Exec("DELETE FROM chefs") })
	return db
}

func seedChef(t *testing.T, db *gorm.DB) *models.Chef {
	t.Helper()
	chef := &models.Chef{UserID: "chef-user", Name: "Rosa", Email: "rosa@example.com"}
	require.NoError(t, db.Create(chef).Error)
	return chef
}

func TestRepository_SetAccountIDIsExactlyOnce(t *testing.T) {
	db := setupChefsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	chef := seedChef(t, db)

	applied, err := repo.SetAccountID(ctx, chef.ID, "acct_first")
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.SetAccountID(ctx, chef.ID, "acct_second")
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := repo.FindByID(ctx, chef.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeAccountID)
	assert.Equal(t, "acct_first", *got.StripeAccountID)
}

func TestRepository_FindByAccountID(t *testing.T) {
	db := setupChefsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	chef := seedChef(t, db)
	_, err := repo.SetAccountID(ctx, chef.ID, "acct_find")
	require.NoError(t, err)

	got, err := repo.FindByAccountID(ctx, "acct_find")
	require.NoError(t, err)
	assert.Equal(t, chef.ID, got.ID)

	_, err = repo.FindByAccountID(ctx, "acct_missing")
	require.Error(t, err)
}

func TestRepository_SetChargesEnabled(t *testing.T) {
	db := setupChefsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	chef := seedChef(t, db)
	require.NoError(t, repo.SetChargesEnabled(ctx, chef.ID, true))

	got, err := repo.FindByUserID(ctx, "chef-user")
	require.NoError(t, err)
	assert.True(t, got.ChargesEnabled)
}
