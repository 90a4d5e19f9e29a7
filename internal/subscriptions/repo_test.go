package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rileybruner/tenantgrid-backend/pkg/db/models"
	dbtypes "github.com/rileybruner/tenantgrid-backend/pkg/db/types"
	"github.com/rileybruner/tenantgrid-backend/pkg/enums"
)

func setupSubscriptionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	subs := `
CREATE TABLE IF NOT EXISTS tenant_subscriptions (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL UNIQUE,
  package_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  started_at DATETIME NOT NULL,
  expires_at DATETIME,
  trial_ends_at DATETIME,
  usage_counters TEXT NOT NULL DEFAULT '{}',
  overrides TEXT,
  expiry_warning_sent INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(subs).Error)
	require.NoError(t, db.Exec("DELETE FROM tenant_subscriptions").Error)
	return db
}

func seedSubscription(t *testing.T, db *gorm.DB, mutate func(*models.TenantSubscription)) *models.TenantSubscription {
	t.Helper()
	now := time.Now().UTC()
	expires := now.Add(30 * 24 * time.Hour)
	sub := &models.TenantSubscription{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		PackageID:     uuid.New(),
		Status:        enums.SubscriptionStatusActive,
		StartedAt:     now,
		ExpiresAt:     &expires,
		UsageCounters: dbtypes.CounterMap{},
	}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, db.Create(sub).Error)
	return sub
}

func TestSuspendIfBillable(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	active := seedSubscription(t, db, nil)
	changed, err := repo.SuspendIfBillable(ctx, active.TenantID, nil, now)
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded, err := repo.FindByTenant(ctx, active.TenantID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusSuspended, reloaded.Status)

	// Second suspension finds nothing billable.
	changed, err = repo.SuspendIfBillable(ctx, active.TenantID, nil, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSuspendIfBillable_PackageScoped(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	sub := seedSubscription(t, db, nil)
	other := uuid.New()

	changed, err := repo.SuspendIfBillable(ctx, sub.TenantID, &other, now)
	require.NoError(t, err)
	assert.False(t, changed, "different package should not suspend")

	changed, err = repo.SuspendIfBillable(ctx, sub.TenantID, &sub.PackageID, now)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestReactivateIfSuspended(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	suspended := seedSubscription(t, db, func(sub *models.TenantSubscription) {
		sub.Status = enums.SubscriptionStatusSuspended
	})
	expired := seedSubscription(t, db, func(sub *models.TenantSubscription) {
		sub.Status = enums.SubscriptionStatusExpired
	})

	changed, err := repo.ReactivateIfSuspended(ctx, suspended.TenantID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	reloaded, err := repo.FindByTenant(ctx, suspended.TenantID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, reloaded.Status)

	// Reactivating an active row is a no-op.
	changed, err = repo.ReactivateIfSuspended(ctx, suspended.TenantID, now)
	require.NoError(t, err)
	assert.False(t, changed)

	// Expired rows never reactivate through this path.
	changed, err = repo.ReactivateIfSuspended(ctx, expired.TenantID, now)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestExpireIfDue_TransitionsExactlyOnce(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	due := seedSubscription(t, db, func(sub *models.TenantSubscription) {
		past := now.Add(-time.Hour)
		sub.ExpiresAt = &past
	})
	future := seedSubscription(t, db, nil)

	changed, err := repo.ExpireIfDue(ctx, due.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.ExpireIfDue(ctx, due.ID, now)
	require.NoError(t, err)
	assert.False(t, changed, "already expired row must not transition again")

	changed, err = repo.ExpireIfDue(ctx, future.ID, now)
	require.NoError(t, err)
	assert.False(t, changed, "future expiry must not transition")
}

func TestMarkWarningSent(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	sub := seedSubscription(t, db, nil)

	changed, err := repo.MarkWarningSent(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkWarningSent(ctx, sub.ID, now)
	require.NoError(t, err)
	assert.False(t, changed, "warning flag only flips once")
}

func TestListExpiringAndExpired(t *testing.T) {
	db := setupSubscriptionsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := seedSubscription(t, db, func(sub *models.TenantSubscription) {
		in3d := now.Add(3 * 24 * time.Hour)
		sub.ExpiresAt = &in3d
	})
	seedSubscription(t, db, func(sub *models.TenantSubscription) {
		in3d := now.Add(3 * 24 * time.Hour)
		sub.ExpiresAt = &in3d
		sub.ExpiryWarningSent = true
	})
	past := seedSubscription(t, db, func(sub *models.TenantSubscription) {
		ago := now.Add(-time.Hour)
		sub.ExpiresAt = &ago
	})
	seedSubscription(t, db, func(sub *models.TenantSubscription) {
		sub.ExpiresAt = nil
	})

	expiring, err := repo.ListExpiring(ctx, now, now.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, soon.ID, expiring[0].ID)

	expired, err := repo.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, past.ID, expired[0].ID)
}
