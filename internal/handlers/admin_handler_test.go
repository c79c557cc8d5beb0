package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/internal/repository"
	"github.com/lamstech/quickcards/internal/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockInventoryAdmin struct {
	mock.Mock
}

func (m *MockInventoryAdmin) ImportBatch(ctx context.Context, serviceID, examTypeID, batchID string, rows []model.InventoryImportRow, defaultExpiry time.Time) (*model.InventoryImportResult, error) {
	args := m.Called(ctx, serviceID, examTypeID, batchID, rows, defaultExpiry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryImportResult), args.Error(1)
}

func (m *MockInventoryAdmin) Stats(ctx context.Context, serviceID string) (*model.InventoryStats, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryStats), args.Error(1)
}

func (m *MockInventoryAdmin) LowStock(ctx context.Context, threshold int64) ([]*model.LowStockAlert, error) {
	args := m.Called(ctx, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.LowStockAlert), args.Error(1)
}

func (m *MockInventoryAdmin) UpdateStatus(ctx context.Context, id int64, status model.InventoryStatus, notes string) error {
	args := m.Called(ctx, id, status, notes)
	return args.Error(0)
}

type MockTransactionAdmin struct {
	mock.Mock
}

func (m *MockTransactionAdmin) Stats(ctx context.Context, from, to *time.Time) (*repository.TransactionStats, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.TransactionStats), args.Error(1)
}

func (m *MockTransactionAdmin) FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionAdmin) Transition(ctx context.Context, id int64, to model.TransactionStatus) error {
	args := m.Called(ctx, id, to)
	return args.Error(0)
}

type MockSweepRunner struct {
	mock.Mock
}

func (m *MockSweepRunner) RunOnce(ctx context.Context) (*sweeper.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sweeper.Result), args.Error(1)
}

func newAdminFixture() (*MockInventoryAdmin, *MockTransactionAdmin, *MockSweepRunner, *AdminHandler) {
	inventory := new(MockInventoryAdmin)
	transactions := new(MockTransactionAdmin)
	sweeps := new(MockSweepRunner)
	return inventory, transactions, sweeps, NewAdminHandler(inventory, transactions, sweeps)
}

func TestAdminHandler_ImportInventory(t *testing.T) {
	t.Run("imports a batch", func(t *testing.T) {
		inventory, _, _, handler := newAdminFixture()

		reqBody := importInventoryRequest{
			ServiceID: "waec",
			Items: []model.InventoryImportRow{
				{SerialNumber: "SER-001", PinCode: "PIN-001"},
				{SerialNumber: "SER-002", PinCode: "PIN-002"},
			},
		}
		bodyBytes, _ := json.Marshal(reqBody)

		inventory.On("ImportBatch", mock.Anything, "waec", "", mock.Anything, mock.Anything, mock.Anything).
			Return(&model.InventoryImportResult{Successful: 2}, nil)

		ctx := setupTestContext("POST", "/admin/inventory/import", bodyBytes)
		handler.ImportInventory(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var result model.InventoryImportResult
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &result))
		assert.Equal(t, 2, result.Successful)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		inventory, _, _, handler := newAdminFixture()

		bodyBytes, _ := json.Marshal(importInventoryRequest{ServiceID: "waec"})
		ctx := setupTestContext("POST", "/admin/inventory/import", bodyBytes)
		handler.ImportInventory(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		inventory.AssertNotCalled(t, "ImportBatch",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAdminHandler_RefundTransaction(t *testing.T) {
	t.Run("cancels a completed transaction", func(t *testing.T) {
		_, transactions, _, handler := newAdminFixture()

		transactions.On("FindByTransactionID", mock.Anything, "TXN260830ABCDEF").Return(&model.Transaction{
			ID: 7, TransactionID: "TXN260830ABCDEF", Status: model.TransactionStatusCompleted,
		}, nil)
		transactions.On("Transition", mock.Anything, int64(7), model.TransactionStatusCancelled).Return(nil)

		ctx := setupTestContext("POST", "/admin/transactions/TXN260830ABCDEF/refund", nil)
		ctx.SetUserValue("transaction_id", "TXN260830ABCDEF")
		handler.RefundTransaction(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		transactions.AssertExpectations(t)
	})

	t.Run("refund of a pending transaction conflicts", func(t *testing.T) {
		_, transactions, _, handler := newAdminFixture()

		transactions.On("FindByTransactionID", mock.Anything, "TXN260830ABCDEF").Return(&model.Transaction{
			ID: 7, Status: model.TransactionStatusPending,
		}, nil)
		transactions.On("Transition", mock.Anything, int64(7), model.TransactionStatusCancelled).
			Return(repository.ErrInvalidTransition)

		ctx := setupTestContext("POST", "/admin/transactions/TXN260830ABCDEF/refund", nil)
		ctx.SetUserValue("transaction_id", "TXN260830ABCDEF")
		handler.RefundTransaction(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("unknown transaction maps to 404", func(t *testing.T) {
		_, transactions, _, handler := newAdminFixture()

		transactions.On("FindByTransactionID", mock.Anything, "TXN000000AAAAAA").
			Return(nil, repository.ErrTransactionNotFound)

		ctx := setupTestContext("POST", "/admin/transactions/TXN000000AAAAAA/refund", nil)
		ctx.SetUserValue("transaction_id", "TXN000000AAAAAA")
		handler.RefundTransaction(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestAdminHandler_GetLowStock(t *testing.T) {
	inventory, _, _, handler := newAdminFixture()

	inventory.On("LowStock", mock.Anything, int64(5)).Return([]*model.LowStockAlert{
		{ServiceID: "waec", AvailableCount: 2},
	}, nil)

	ctx := setupTestContext("GET", "/admin/inventory/low-stock?threshold=5", nil)
	handler.GetLowStock(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response struct {
		Threshold int64                  `json:"threshold"`
		Items     []*model.LowStockAlert `json:"items"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, int64(5), response.Threshold)
	require.Len(t, response.Items, 1)
}

func TestAdminHandler_TriggerSweep(t *testing.T) {
	_, _, sweeps, handler := newAdminFixture()

	sweeps.On("RunOnce", mock.Anything).Return(&sweeper.Result{ExpiredTransactions: 3}, nil)

	ctx := setupTestContext("POST", "/admin/sweeps", nil)
	handler.TriggerSweep(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var result sweeper.Result
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &result))
	assert.Equal(t, int64(3), result.ExpiredTransactions)
}
