package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedInventory(t *testing.T, db *testDB, serviceID string, count int) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, count)
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		e := &InventoryEntity{
			ServiceID:    serviceID,
			SerialNumber: fmt.Sprintf("%s-SER-%03d", serviceID, i),
			PinCode:      fmt.Sprintf("%s-PIN-%03d", serviceID, i),
			BatchID:      "batch-1",
			Status:       string(model.InventoryStatusAvailable),
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Write(ctx).Create(e).Error)
		ids = append(ids, e.ID)
	}
	return ids
}

func TestInventoryRepository_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("claims oldest items first", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		ids := seedInventory(t, db, "waec", 5)

		items, err := repo.Claim(ctx, "waec", "", 3, "token-1")
		require.NoError(t, err)
		require.Len(t, items, 3)

		// FIFO: the three oldest rows win.
		assert.Equal(t, ids[0], items[0].ID)
		assert.Equal(t, ids[1], items[1].ID)
		assert.Equal(t, ids[2], items[2].ID)
		for _, it := range items {
			assert.Equal(t, model.InventoryStatusClaimed, it.Status)
		}

		available, err := repo.CountAvailable(ctx, "waec", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), available)
	})

	t.Run("insufficient stock claims nothing", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 2)

		items, err := repo.Claim(ctx, "waec", "", 5, "token-1")
		assert.Nil(t, items)
		assert.ErrorIs(t, err, ErrInsufficientStock)

		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 5, stockErr.Requested)
		assert.Equal(t, 2, stockErr.Available)

		// All-or-nothing: no row left half-claimed.
		available, err := repo.CountAvailable(ctx, "waec", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), available)
	})

	t.Run("rolls back when a rival claim wins selected rows", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		ids := seedInventory(t, db, "waec", 3)

		// Flip one candidate to claimed between the select and the guarded
		// update, the way a second claimant would under postgres row locks.
		stolen := false
		err := db.rawDB.Callback().Update().Before("gorm:update").Register("rival_claim", func(tx *gorm.DB) {
			if stolen || tx.Statement.Table != (InventoryEntity{}).TableName() {
				return
			}
			stolen = true
			tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE pincode_inventory SET status = ?, claim_token = ? WHERE id = ?",
					string(model.InventoryStatusClaimed), "token-rival", ids[0])
		})
		require.NoError(t, err)
		defer db.rawDB.Callback().Update().Remove("rival_claim")

		items, err := repo.Claim(ctx, "waec", "", 3, "token-1")
		assert.Nil(t, items)
		assert.ErrorIs(t, err, ErrInsufficientStock)

		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 3, stockErr.Requested)
		assert.Equal(t, 2, stockErr.Available)

		// The whole claim rolled back, the rival's write with it.
		available, err := repo.CountAvailable(ctx, "waec", "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), available)
	})

	t.Run("does not cross service boundaries", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 3)
		seedInventory(t, db, "bece", 3)

		_, err := repo.Claim(ctx, "waec", "", 3, "token-1")
		require.NoError(t, err)

		available, err := repo.CountAvailable(ctx, "bece", "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), available)
	})

	t.Run("filters by exam type", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)

		e := &InventoryEntity{
			ServiceID:    "waec",
			ExamTypeID:   "wassce-2026",
			SerialNumber: "S-ET-1",
			PinCode:      "P-ET-1",
			Status:       string(model.InventoryStatusAvailable),
		}
		require.NoError(t, db.Write(ctx).Create(e).Error)
		seedInventory(t, db, "waec", 2)

		items, err := repo.Claim(ctx, "waec", "wassce-2026", 1, "token-1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "wassce-2026", items[0].ExamTypeID)

		_, err = repo.Claim(ctx, "waec", "wassce-2026", 1, "token-2")
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("rejects non-positive quantity and empty token", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)

		_, err := repo.Claim(ctx, "waec", "", 0, "token-1")
		assert.Error(t, err)

		_, err = repo.Claim(ctx, "waec", "", 1, "")
		assert.Error(t, err)
	})
}

func TestInventoryRepository_CommitSale(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps sale fields on claimed items", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 3)

		items, err := repo.Claim(ctx, "waec", "", 2, "token-1")
		require.NoError(t, err)

		err = repo.CommitSale(ctx, "token-1", "0241234567", "QCG4567TEST")
		require.NoError(t, err)

		sold, err := repo.FindByReference(ctx, "QCG4567TEST")
		require.NoError(t, err)
		require.Len(t, sold, len(items))
		for _, it := range sold {
			assert.Equal(t, model.InventoryStatusSold, it.Status)
			assert.Equal(t, "0241234567", it.SoldToPhone)
			assert.NotNil(t, it.SoldAt)
		}
	})

	t.Run("fails for an unknown token", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 1)

		err := repo.CommitSale(ctx, "no-such-token", "0241234567", "QCGREF")
		assert.ErrorIs(t, err, ErrClaimMismatch)
	})
}

func TestInventoryRepository_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("returns claimed items to the pool", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 4)

		_, err := repo.Claim(ctx, "waec", "", 3, "token-1")
		require.NoError(t, err)

		require.NoError(t, repo.Release(ctx, "token-1"))

		available, err := repo.CountAvailable(ctx, "waec", "")
		require.NoError(t, err)
		assert.Equal(t, int64(4), available)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 2)

		_, err := repo.Claim(ctx, "waec", "", 2, "token-1")
		require.NoError(t, err)

		require.NoError(t, repo.Release(ctx, "token-1"))
		require.NoError(t, repo.Release(ctx, "token-1"))
		require.NoError(t, repo.Release(ctx, "never-claimed"))

		available, err := repo.CountAvailable(ctx, "waec", "")
		require.NoError(t, err)
		assert.Equal(t, int64(2), available)
	})

	t.Run("does not touch sold items", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewInventoryRepository(db.DB)
		seedInventory(t, db, "waec", 2)

		_, err := repo.Claim(ctx, "waec", "", 2, "token-1")
		require.NoError(t, err)
		require.NoError(t, repo.CommitSale(ctx, "token-1", "0241234567", "QCGREF"))

		require.NoError(t, repo.Release(ctx, "token-1"))

		sold, err := repo.FindByReference(ctx, "QCGREF")
		require.NoError(t, err)
		assert.Len(t, sold, 2)
	})
}

func TestInventoryRepository_ReleaseStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInventoryRepository(db.DB)
	ctx := context.Background()
	seedInventory(t, db, "waec", 3)

	_, err := repo.Claim(ctx, "waec", "", 2, "token-old")
	require.NoError(t, err)

	released, err := repo.ReleaseStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), released)

	available, err := repo.CountAvailable(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)

	// A fresh claim survives a sweep with an earlier cutoff.
	_, err = repo.Claim(ctx, "waec", "", 1, "token-new")
	require.NoError(t, err)
	released, err = repo.ReleaseStale(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), released)
}

func TestInventoryRepository_ImportBatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInventoryRepository(db.DB)
	ctx := context.Background()
	expiry := time.Now().AddDate(1, 0, 0)

	rows := []model.InventoryImportRow{
		{SerialNumber: "SER-001", PinCode: "PIN-001"},
		{SerialNumber: "SER-002", PinCode: "PIN-002", VoucherCode: "V-002"},
		{SerialNumber: "", PinCode: "PIN-003"},
		{SerialNumber: "SER-001", PinCode: "PIN-004"},
	}

	result, err := repo.ImportBatch(ctx, "waec", "", "batch-42", rows, expiry)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)

	available, err := repo.CountAvailable(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), available)
}

func TestInventoryRepository_MarkExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInventoryRepository(db.DB)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, db.Write(ctx).Create(&InventoryEntity{
		ServiceID: "waec", SerialNumber: "S1", PinCode: "P1",
		Status: string(model.InventoryStatusAvailable), ExpiresAt: &past,
	}).Error)
	require.NoError(t, db.Write(ctx).Create(&InventoryEntity{
		ServiceID: "waec", SerialNumber: "S2", PinCode: "P2",
		Status: string(model.InventoryStatusAvailable), ExpiresAt: &future,
	}).Error)

	expired, err := repo.MarkExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	stats, err := repo.Stats(ctx, "waec")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Available)
}

func TestInventoryRepository_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInventoryRepository(db.DB)
	ctx := context.Background()
	seedInventory(t, db, "waec", 4)

	_, err := repo.Claim(ctx, "waec", "", 2, "token-1")
	require.NoError(t, err)
	require.NoError(t, repo.CommitSale(ctx, "token-1", "0241234567", "QCGREF"))

	stats, err := repo.Stats(ctx, "waec")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Available)
	assert.Equal(t, int64(2), stats.Sold)
}

func TestInventoryRepository_LowStock(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInventoryRepository(db.DB)
	ctx := context.Background()
	seedInventory(t, db, "waec", 2)
	seedInventory(t, db, "bece", 12)

	alerts, err := repo.LowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "waec", alerts[0].ServiceID)
	assert.Equal(t, int64(2), alerts[0].AvailableCount)
}
