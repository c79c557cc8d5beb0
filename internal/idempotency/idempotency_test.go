package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lamstech/quickcards/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Mock Redis adapter for testing
type mockRedisAdapter struct {
	data map[string][]byte
	ttls map[string]time.Time
}

func newMockRedisAdapter() *mockRedisAdapter {
	return &mockRedisAdapter{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Time),
	}
}

func (m *mockRedisAdapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (m *mockRedisAdapter) Set(key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *mockRedisAdapter) Get(key string) ([]byte, error) {
	if ttl, ok := m.ttls[key]; ok && time.Now().After(ttl) {
		delete(m.data, key)
		delete(m.ttls, key)
		return nil, redis.NilError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, redis.NilError
}

func (m *mockRedisAdapter) Del(key string) error {
	delete(m.data, key)
	delete(m.ttls, key)
	return nil
}

func (m *mockRedisAdapter) Exist(key string) (int64, error) {
	if ttl, ok := m.ttls[key]; ok && time.Now().After(ttl) {
		delete(m.data, key)
		delete(m.ttls, key)
		return 0, nil
	}
	if _, ok := m.data[key]; ok {
		return 1, nil
	}
	return 0, nil
}

// Stub implementations for unused methods
func (m *mockRedisAdapter) SMembers(key string) ([]string, error)         { return nil, nil }
func (m *mockRedisAdapter) SAdd(key string, value ...interface{}) error   { return nil }
func (m *mockRedisAdapter) HGet(key string, field string) ([]byte, error) { return nil, nil }
func (m *mockRedisAdapter) HGetAll(key string) (map[string]string, error) { return nil, nil }
func (m *mockRedisAdapter) HScan(key string, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return nil, 0, nil
}
func (m *mockRedisAdapter) SScan(key string, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return nil, 0, nil
}
func (m *mockRedisAdapter) HGetMultiple(keys ...string) (map[string]map[string]string, error) {
	return nil, nil
}
func (m *mockRedisAdapter) HSetIfNotExists(key string, field string, value interface{}) error {
	return nil
}
func (m *mockRedisAdapter) HSet(key string, field string, value interface{}) error { return nil }
func (m *mockRedisAdapter) HIncrement(key string, field string, value int64) error { return nil }
func (m *mockRedisAdapter) HIncrementBatch(coreName, keySuffix string, fieldAndValues map[string]int64, ttl time.Duration) error {
	return nil
}
func (m *mockRedisAdapter) TxPipelined(fn func(goredis.Pipeliner) error) ([]goredis.Cmder, error) {
	return nil, nil
}
func (m *mockRedisAdapter) Client() goredis.UniversalClient { return nil }
func (m *mockRedisAdapter) XAdd(key string, values map[string]interface{}) (string, error) {
	return "", nil
}
func (m *mockRedisAdapter) XAddWithID(key string, id string, values map[string]interface{}) (string, error) {
	return "", nil
}
func (m *mockRedisAdapter) XRead(key string, id string, count int64) ([]redis.StreamMessage, error) {
	return nil, nil
}
func (m *mockRedisAdapter) XReadGroup(group, consumer, key, id string, count int64) ([]redis.StreamMessage, error) {
	return nil, nil
}
func (m *mockRedisAdapter) XAck(key, group string, ids ...string) error           { return nil }
func (m *mockRedisAdapter) XGroupCreate(key, group, start string) error           { return nil }
func (m *mockRedisAdapter) XGroupCreateMkStream(key, group, start string) error   { return nil }
func (m *mockRedisAdapter) XLen(key string) (int64, error)                        { return 0, nil }
func (m *mockRedisAdapter) XDel(key string, ids ...string) error                  { return nil }
func (m *mockRedisAdapter) XTrim(key string, maxLen int64) error                  { return nil }
func (m *mockRedisAdapter) XTrimApprox(key string, maxLen int64) error            { return nil }
func (m *mockRedisAdapter) XPending(key, group string) (*goredis.XPending, error) { return nil, nil }
func (m *mockRedisAdapter) XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	return nil, nil
}
func (m *mockRedisAdapter) XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error) {
	return nil, nil
}

func TestGuard_Acquire_FirstAttempt(t *testing.T) {
	mockRedis := newMockRedisAdapter()
	guard := NewGuard(mockRedis, DefaultConfig())

	ctx := context.Background()
	key := "purchase-key-1"

	// First attempt should succeed
	token, err := guard.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if token == nil {
		t.Fatal("Expected token, got nil")
	}

	if token.Key != key {
		t.Errorf("Expected key %s, got %s", key, token.Key)
	}

	if !token.lockAcquired {
		t.Error("Expected lock to be acquired")
	}
}

func TestGuard_Acquire_Concurrent(t *testing.T) {
	mockRedis := newMockRedisAdapter()
	guard := NewGuard(mockRedis, DefaultConfig())

	ctx := context.Background()
	key := "purchase-key-2"

	// First request acquires lock
	token1, err := guard.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("First acquisition failed: %v", err)
	}

	// Second request with the same key runs into the lock
	token2, err := guard.Acquire(ctx, key)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("Expected ErrInFlight, got: %v", err)
	}

	if token2 != nil {
		t.Error("Expected nil token for second request")
	}

	// First request still holds the lock
	if !token1.lockAcquired {
		t.Error("First request should still hold the lock")
	}
}

func TestGuard_MarkDone(t *testing.T) {
	mockRedis := newMockRedisAdapter()
	guard := NewGuard(mockRedis, DefaultConfig())

	ctx := context.Background()
	key := "purchase-key-3"

	token, err := guard.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquisition failed: %v", err)
	}

	if err := guard.MarkDone(ctx, token); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	done, err := guard.IsDone(ctx, key)
	if err != nil {
		t.Fatalf("IsDone check failed: %v", err)
	}
	if !done {
		t.Error("Key should be marked as completed")
	}

	// Replaying the key must be rejected
	token2, err := guard.Acquire(ctx, key)
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got: %v", err)
	}

	if token2 != nil {
		t.Error("Expected nil token for replayed key")
	}
}

func TestGuard_Release_AllowsRetry(t *testing.T) {
	mockRedis := newMockRedisAdapter()
	guard := NewGuard(mockRedis, DefaultConfig())

	ctx := context.Background()
	key := "purchase-key-4"

	token, err := guard.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquisition failed: %v", err)
	}

	if err := guard.Release(ctx, token); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if token.lockAcquired {
		t.Error("Lock should be marked as released")
	}

	// The client may retry the same key after a failed purchase
	token2, err := guard.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Second acquisition failed: %v", err)
	}

	if token2 == nil {
		t.Fatal("Expected token, got nil")
	}
}

func TestGuard_IsDone_Fresh(t *testing.T) {
	mockRedis := newMockRedisAdapter()
	guard := NewGuard(mockRedis, DefaultConfig())

	done, err := guard.IsDone(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("IsDone failed: %v", err)
	}
	if done {
		t.Error("Fresh key should not be done")
	}
}
