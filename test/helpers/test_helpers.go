package helpers

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lamstech/quickcards/internal/repository"
	"github.com/lamstech/quickcards/pkg/pg"
	"github.com/lamstech/quickcards/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.InventoryEntity{},
		&repository.TransactionEntity{},
		&repository.ReferenceEntity{},
		&repository.CheckerEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

// SeedInventory loads count available serial/PIN pairs for a service. Serials
// and PINs are derived from the batch ID so repeated calls stay unique.
func SeedInventory(t *testing.T, db *pg.DB, serviceID, batchID string, count int) []*repository.InventoryEntity {
	ctx := context.Background()
	items := make([]*repository.InventoryEntity, 0, count)
	for i := 0; i < count; i++ {
		item := &repository.InventoryEntity{
			ServiceID:    serviceID,
			SerialNumber: fmt.Sprintf("%s-SER-%04d", batchID, i),
			PinCode:      fmt.Sprintf("%s-PIN-%04d", batchID, i),
			BatchID:      batchID,
			Status:       "available",
			CreatedAt:    time.Now(),
		}
		err := db.Write(ctx).Create(item).Error
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func CreateTestTransaction(t *testing.T, db *pg.DB, serviceID, phone, status string, quantity int) *repository.TransactionEntity {
	ctx := context.Background()
	now := time.Now()
	txn := &repository.TransactionEntity{
		TransactionID: RandomID("TXN"),
		PrintID:       RandomID("PRN"),
		ServiceID:     serviceID,
		Quantity:      quantity,
		UnitPrice:     17.5,
		TotalAmount:   17.5 * float64(quantity),
		Phone:         phone,
		ProviderID:    "mtn",
		Status:        status,
		CreatedAt:     now,
		ExpiresAt:     now.Add(10 * time.Minute),
	}
	err := db.Write(ctx).Create(txn).Error
	require.NoError(t, err)
	return txn
}

func CreateTestReference(t *testing.T, db *pg.DB, code, phone string, transactionID int64) *repository.ReferenceEntity {
	ctx := context.Background()
	ref := &repository.ReferenceEntity{
		Code:          code,
		Phone:         phone,
		TransactionID: transactionID,
		ServiceID:     "waec",
		Quantity:      1,
		TotalAmount:   17.5,
		Status:        "active",
		ExpiresAt:     time.Now().Add(90 * 24 * time.Hour),
		CreatedAt:     time.Now(),
	}
	err := db.Write(ctx).Create(ref).Error
	require.NoError(t, err)
	return ref
}

func CreateTestChecker(t *testing.T, db *pg.DB, inventoryID, transactionID int64, referenceCode string) *repository.CheckerEntity {
	ctx := context.Background()
	chk := &repository.CheckerEntity{
		Code:          RandomID("CHK"),
		InventoryID:   inventoryID,
		TransactionID: transactionID,
		ReferenceCode: referenceCode,
		SerialNumber:  RandomID("SER"),
		PinCode:       RandomID("PIN"),
		Status:        "active",
		CreatedAt:     time.Now(),
	}
	err := db.Write(ctx).Create(chk).Error
	require.NoError(t, err)
	return chk
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

var idSeq atomic.Int64

func RandomID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idSeq.Add(1))
}

func Ptr[T any](v T) *T {
	return &v
}
