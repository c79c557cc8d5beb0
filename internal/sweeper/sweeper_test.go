package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type MockInventoryStore struct {
	mock.Mock
}

func (m *MockInventoryStore) Release(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockInventoryStore) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInventoryStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

func (m *MockTransactionStore) Transition(ctx context.Context, id int64, to model.TransactionStatus) error {
	args := m.Called(ctx, id, to)
	return args.Error(0)
}

type MockReferenceStore struct {
	mock.Mock
}

func (m *MockReferenceStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockCheckerStore struct {
	mock.Mock
}

func (m *MockCheckerStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type sweepFixture struct {
	inventory    *MockInventoryStore
	transactions *MockTransactionStore
	references   *MockReferenceStore
	checkers     *MockCheckerStore
	clock        *fakeClock
	sweeper      *Sweeper
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		inventory:    new(MockInventoryStore),
		transactions: new(MockTransactionStore),
		references:   new(MockReferenceStore),
		checkers:     new(MockCheckerStore),
		clock:        &fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
	}
	f.sweeper = New(f.inventory, f.transactions, f.references, f.checkers, nil, Config{
		StaleClaimAge: 15 * time.Minute,
		BatchSize:     50,
	})
	f.sweeper.SetClock(f.clock)
	return f
}

func (f *sweepFixture) expectQuietTail() {
	f.inventory.On("ReleaseStale", mock.Anything, f.clock.now.Add(-15*time.Minute)).Return(int64(0), nil)
	f.inventory.On("MarkExpired", mock.Anything, f.clock.now).Return(int64(0), nil)
	f.references.On("MarkExpired", mock.Anything, f.clock.now).Return(int64(0), nil)
	f.checkers.On("MarkExpired", mock.Anything, f.clock.now).Return(int64(0), nil)
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("expires overdue transactions and releases their claims", func(t *testing.T) {
		f := newSweepFixture(t)

		f.transactions.On("FindExpired", ctx, f.clock.now, 50).Return([]*model.Transaction{
			{ID: 1, ClaimToken: "token-1"},
			{ID: 2, ClaimToken: "token-2"},
		}, nil)
		f.transactions.On("Transition", ctx, int64(1), model.TransactionStatusExpired).Return(nil)
		f.transactions.On("Transition", ctx, int64(2), model.TransactionStatusExpired).Return(nil)
		f.inventory.On("Release", ctx, "token-1").Return(nil)
		f.inventory.On("Release", ctx, "token-2").Return(nil)
		f.expectQuietTail()

		result, err := f.sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), result.ExpiredTransactions)
		assert.Equal(t, int64(2), result.ReleasedClaims)
	})

	t.Run("a transaction that moved on keeps its claim", func(t *testing.T) {
		f := newSweepFixture(t)

		f.transactions.On("FindExpired", ctx, f.clock.now, 50).Return([]*model.Transaction{
			{ID: 1, ClaimToken: "token-1"},
		}, nil)
		f.transactions.On("Transition", ctx, int64(1), model.TransactionStatusExpired).
			Return(errors.New("transaction was updated concurrently"))
		f.expectQuietTail()

		result, err := f.sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.ExpiredTransactions)
		f.inventory.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("sweeps stale claims and dated records", func(t *testing.T) {
		f := newSweepFixture(t)

		f.transactions.On("FindExpired", ctx, f.clock.now, 50).Return([]*model.Transaction{}, nil)
		f.inventory.On("ReleaseStale", mock.Anything, f.clock.now.Add(-15*time.Minute)).Return(int64(3), nil)
		f.inventory.On("MarkExpired", mock.Anything, f.clock.now).Return(int64(5), nil)
		f.references.On("MarkExpired", mock.Anything, f.clock.now).Return(int64(2), nil)
		f.checkers.On("MarkExpired", mock.Anything, f.clock.now).Return(int64(4), nil)

		result, err := f.sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.StaleClaimsReleased)
		assert.Equal(t, int64(5), result.ExpiredInventory)
		assert.Equal(t, int64(2), result.ExpiredReferences)
		assert.Equal(t, int64(4), result.ExpiredCheckers)
	})

	t.Run("query failure aborts the cycle", func(t *testing.T) {
		f := newSweepFixture(t)
		f.transactions.On("FindExpired", ctx, f.clock.now, 50).Return(nil, errors.New("db down"))

		_, err := f.sweeper.RunOnce(ctx)
		assert.Error(t, err)
	})
}
