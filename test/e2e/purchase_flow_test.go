package e2e

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lamstech/quickcards/internal/config"
	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/internal/payment"
	"github.com/lamstech/quickcards/internal/repository"
	"github.com/lamstech/quickcards/internal/services"
	"github.com/lamstech/quickcards/internal/sweeper"
	"github.com/lamstech/quickcards/pkg/pg"
	"github.com/lamstech/quickcards/pkg/redis"
	"github.com/lamstech/quickcards/test/helpers"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB = pg.DB

type TestEnvironment struct {
	DB              *pg.DB
	Redis           *miniredis.Miniredis
	RedisAdapter    redis.RedisAdapter
	InventoryRepo   *repository.InventoryRepository
	TransactionRepo *repository.TransactionRepository
	ReferenceRepo   *repository.ReferenceRepository
	CheckerRepo     *repository.CheckerRepository
	Payments        *payment.FakeAdapter
	PurchaseService *services.PurchaseService
	Sweeper         *sweeper.Sweeper
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.InventoryEntity{},
		&repository.TransactionEntity{},
		&repository.ReferenceEntity{},
		&repository.CheckerEntity{},
	)
	require.NoError(t, err)

	pgDB := &testDB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	redisAdapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	inventoryRepo := repository.NewInventoryRepository(pgDB)
	transactionRepo := repository.NewTransactionRepository(pgDB)
	referenceRepo := repository.NewReferenceRepository(pgDB)
	checkerRepo := repository.NewCheckerRepository(pgDB)

	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	payments := payment.NewFakeAdapter(1)

	purchaseService := services.NewPurchaseService(
		inventoryRepo,
		transactionRepo,
		referenceRepo,
		checkerRepo,
		services.NewCheckerService(checkerRepo),
		services.NewReferenceService(referenceRepo),
		catalog,
		payments,
		nil,
		nil,
		services.PurchaseConfig{
			PaymentWindow: 10 * time.Minute,
			PollInterval:  10 * time.Millisecond,
			PollTimeout:   2 * time.Second,
			ReferenceTTL:  90 * 24 * time.Hour,
		},
	)

	sw := sweeper.New(inventoryRepo, transactionRepo, referenceRepo, checkerRepo, redisAdapter, sweeper.Config{
		Interval:      time.Hour,
		StaleClaimAge: 30 * time.Minute,
		BatchSize:     50,
	})

	return &TestEnvironment{
		DB:              pgDB,
		Redis:           mr,
		RedisAdapter:    redisAdapter,
		InventoryRepo:   inventoryRepo,
		TransactionRepo: transactionRepo,
		ReferenceRepo:   referenceRepo,
		CheckerRepo:     checkerRepo,
		Payments:        payments,
		PurchaseService: purchaseService,
		Sweeper:         sw,
	}
}

func (env *TestEnvironment) Cleanup() {
	if env.Redis != nil {
		env.Redis.Close()
	}
}

func TestE2E_PurchaseHappyPath(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	helpers.SeedInventory(t, env.DB, "waec", "BATCH-HAPPY", 5)

	result, err := env.PurchaseService.Purchase(ctx, model.PurchaseRequest{
		ServiceID:  "waec",
		Quantity:   2,
		Phone:      "0244123456",
		ProviderID: "mtn",
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.NotEmpty(t, result.TransactionID)
	assert.NotEmpty(t, result.PrintID)
	assert.NotEmpty(t, result.ReferenceCode)
	assert.Equal(t, "WAEC Results Checker", result.ServiceName)
	assert.Equal(t, 2, result.Quantity)
	assert.InDelta(t, 40.0, result.TotalAmount, 0.001)
	require.Len(t, result.Checkers, 2)
	for _, chk := range result.Checkers {
		assert.NotEmpty(t, chk.Code)
		assert.NotEmpty(t, chk.SerialNumber)
		assert.NotEmpty(t, chk.PinCode)
		assert.Equal(t, result.ReferenceCode, chk.ReferenceCode)
	}

	var sold int64
	env.DB.Read(ctx).Model(&repository.InventoryEntity{}).
		Where("status = ? AND sold_to_phone = ?", "sold", "0244123456").
		Count(&sold)
	assert.Equal(t, int64(2), sold)

	var txn repository.TransactionEntity
	err = env.DB.Read(ctx).Where("transaction_id = ?", result.TransactionID).First(&txn).Error
	require.NoError(t, err)
	assert.Equal(t, "completed", txn.Status)
	assert.NotNil(t, txn.PaidAt)
	assert.NotEmpty(t, txn.PaymentRef)

	var ref repository.ReferenceEntity
	err = env.DB.Read(ctx).Where("reference_code = ?", result.ReferenceCode).First(&ref).Error
	require.NoError(t, err)
	assert.Equal(t, "active", ref.Status)
	assert.Equal(t, "0244123456", ref.Phone)

	available, err := env.InventoryRepo.CountAvailable(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)
}

func TestE2E_PaymentDeclined(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	helpers.SeedInventory(t, env.DB, "waec", "BATCH-DECLINE", 3)

	// Wallets ending 0000 always decline in the fake adapter.
	result, err := env.PurchaseService.Purchase(ctx, model.PurchaseRequest{
		ServiceID:  "waec",
		Quantity:   1,
		Phone:      "0240000000",
		ProviderID: "mtn",
	})
	assert.ErrorIs(t, err, services.ErrPaymentFailed)
	assert.Nil(t, result)

	// The claim must be handed back to the pool.
	helpers.AssertEventually(t, 2*time.Second, func() bool {
		available, err := env.InventoryRepo.CountAvailable(ctx, "waec", "")
		return err == nil && available == 3
	}, "claimed inventory not released after declined payment")

	helpers.AssertEventually(t, 2*time.Second, func() bool {
		var txn repository.TransactionEntity
		if err := env.DB.Read(ctx).Where("phone_number = ?", "0240000000").First(&txn).Error; err != nil {
			return false
		}
		return txn.Status == "failed"
	}, "transaction not marked failed after declined payment")

	var checkers int64
	env.DB.Read(ctx).Model(&repository.CheckerEntity{}).Count(&checkers)
	assert.Equal(t, int64(0), checkers)
}

func TestE2E_OutOfStock(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	helpers.SeedInventory(t, env.DB, "waec", "BATCH-SHORT", 1)

	result, err := env.PurchaseService.Purchase(ctx, model.PurchaseRequest{
		ServiceID:  "waec",
		Quantity:   3,
		Phone:      "0244123456",
		ProviderID: "mtn",
	})
	assert.ErrorIs(t, err, services.ErrOutOfStock)
	assert.Nil(t, result)

	// All-or-nothing: the single item stays available and no transaction
	// record is written.
	available, err := env.InventoryRepo.CountAvailable(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), available)

	var count int64
	env.DB.Read(ctx).Model(&repository.TransactionEntity{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestE2E_RetrieveByReference(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	helpers.SeedInventory(t, env.DB, "waec", "BATCH-RETRIEVE", 3)

	purchased, err := env.PurchaseService.Purchase(ctx, model.PurchaseRequest{
		ServiceID:  "waec",
		Quantity:   2,
		Phone:      "0244123456",
		ProviderID: "mtn",
	})
	require.NoError(t, err)

	retrieved, err := env.PurchaseService.Retrieve(ctx, model.RetrieveRequest{
		Phone:         "0244123456",
		ReferenceCode: purchased.ReferenceCode,
	})
	require.NoError(t, err)
	assert.Equal(t, purchased.ReferenceCode, retrieved.ReferenceCode)
	require.Len(t, retrieved.Checkers, 2)

	got := map[string]bool{}
	for _, chk := range retrieved.Checkers {
		got[chk.SerialNumber] = true
	}
	for _, chk := range purchased.Checkers {
		assert.True(t, got[chk.SerialNumber], "serial %s missing from retrieval", chk.SerialNumber)
	}

	// Only the buying phone may retrieve.
	_, err = env.PurchaseService.Retrieve(ctx, model.RetrieveRequest{
		Phone:         "0255123456",
		ReferenceCode: purchased.ReferenceCode,
	})
	assert.ErrorIs(t, err, services.ErrReferenceNotFound)
}

func TestE2E_SweeperRecoversExpiredTransaction(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	helpers.SeedInventory(t, env.DB, "waec", "BATCH-SWEEP", 2)

	_, err := env.InventoryRepo.Claim(ctx, "waec", "", 2, "sweep-token")
	require.NoError(t, err)

	now := time.Now()
	txn := &repository.TransactionEntity{
		TransactionID: "TXN-SWEEP-1",
		PrintID:       "PRN-SWEEP-1",
		ServiceID:     "waec",
		Quantity:      2,
		UnitPrice:     20,
		TotalAmount:   40,
		Phone:         "0244123456",
		ProviderID:    "mtn",
		ClaimToken:    "sweep-token",
		Status:        "pending",
		CreatedAt:     now.Add(-20 * time.Minute),
		ExpiresAt:     now.Add(-10 * time.Minute),
	}
	require.NoError(t, env.DB.Write(ctx).Create(txn).Error)

	result, err := env.Sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ExpiredTransactions)
	assert.Equal(t, int64(1), result.ReleasedClaims)

	var swept repository.TransactionEntity
	require.NoError(t, env.DB.Read(ctx).First(&swept, txn.ID).Error)
	assert.Equal(t, "expired", swept.Status)

	available, err := env.InventoryRepo.CountAvailable(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), available)
}

func TestE2E_AvailabilityAndHistory(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()
	helpers.SeedInventory(t, env.DB, "waec", "BATCH-AVAIL", 4)

	available, err := env.PurchaseService.Availability(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), available)

	_, err = env.PurchaseService.Purchase(ctx, model.PurchaseRequest{
		ServiceID:  "waec",
		Quantity:   1,
		Phone:      "0244123456",
		ProviderID: "mtn",
	})
	require.NoError(t, err)

	available, err = env.PurchaseService.Availability(ctx, "waec", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), available)

	history, err := env.PurchaseService.History(ctx, "0244123456", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TransactionStatusCompleted, history[0].Status)
}
