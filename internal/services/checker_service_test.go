package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCheckerRepository struct {
	mock.Mock
}

// CreateBatch echoes its input when the expectation returns (nil, nil),
// mirroring the real repository handing back the created rows.
func (m *MockCheckerRepository) CreateBatch(ctx context.Context, checkers []*model.Checker) ([]*model.Checker, error) {
	args := m.Called(ctx, checkers)
	if args.Error(1) != nil {
		return nil, args.Error(1)
	}
	if args.Get(0) == nil {
		return checkers, nil
	}
	return args.Get(0).([]*model.Checker), nil
}

func (m *MockCheckerRepository) FindByTransaction(ctx context.Context, transactionID int64) ([]*model.Checker, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Checker), args.Error(1)
}

func (m *MockCheckerRepository) FindByReference(ctx context.Context, referenceCode string) ([]*model.Checker, error) {
	args := m.Called(ctx, referenceCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Checker), args.Error(1)
}

func testItems(count int) []*model.InventoryItem {
	items := make([]*model.InventoryItem, count)
	for i := 0; i < count; i++ {
		items[i] = &model.InventoryItem{
			ID:           int64(i + 1),
			SerialNumber: fmt.Sprintf("SER-%03d", i+1),
			PinCode:      fmt.Sprintf("PIN-%03d", i+1),
		}
	}
	return items
}

func TestCheckerService_Issue(t *testing.T) {
	ctx := context.Background()
	txn := &model.Transaction{ID: 7, TransactionID: "TXN260830ABCDEF"}

	t.Run("issues one checker per item", func(t *testing.T) {
		repo := new(MockCheckerRepository)
		repo.On("FindByTransaction", ctx, int64(7)).Return([]*model.Checker{}, nil)
		repo.On("CreateBatch", ctx, mock.Anything).Return(nil, nil)

		svc := NewCheckerService(repo)
		checkers, err := svc.Issue(ctx, txn, "QCG4567ABCD", testItems(3))
		require.NoError(t, err)
		require.Len(t, checkers, 3)

		assert.Equal(t, "CHKQCG4567ABCD001", checkers[0].Code)
		assert.Equal(t, "CHKQCG4567ABCD003", checkers[2].Code)
		for i, c := range checkers {
			assert.Equal(t, int64(i+1), c.InventoryID)
			assert.Equal(t, int64(7), c.TransactionID)
			assert.Equal(t, "QCG4567ABCD", c.ReferenceCode)
			assert.Equal(t, model.CheckerStatusActive, c.Status)
		}
	})

	t.Run("replays an already issued transaction", func(t *testing.T) {
		existing := []*model.Checker{{ID: 1}, {ID: 2}}
		repo := new(MockCheckerRepository)
		repo.On("FindByTransaction", ctx, int64(7)).Return(existing, nil)

		svc := NewCheckerService(repo)
		checkers, err := svc.Issue(ctx, txn, "QCG4567ABCD", testItems(2))
		require.NoError(t, err)
		assert.Equal(t, existing, checkers)
		repo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("short existing set needs reconciliation", func(t *testing.T) {
		repo := new(MockCheckerRepository)
		repo.On("FindByTransaction", ctx, int64(7)).Return([]*model.Checker{{ID: 1}}, nil)

		svc := NewCheckerService(repo)
		checkers, err := svc.Issue(ctx, txn, "QCG4567ABCD", testItems(3))

		var partial *PartialIssueError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, 3, partial.Wanted)
		assert.Equal(t, 1, partial.Issued)
		assert.Len(t, checkers, 1)
	})

	t.Run("batch failure reports zero issued", func(t *testing.T) {
		repo := new(MockCheckerRepository)
		repo.On("FindByTransaction", ctx, int64(7)).Return([]*model.Checker{}, nil)
		repo.On("CreateBatch", ctx, mock.Anything).Return(nil, errors.New("constraint violation"))

		svc := NewCheckerService(repo)
		_, err := svc.Issue(ctx, txn, "QCG4567ABCD", testItems(2))

		var partial *PartialIssueError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, 0, partial.Issued)
	})
}
