package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/google/uuid"
	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/internal/repository"
	"github.com/lamstech/quickcards/internal/sweeper"
	xhttp "github.com/lamstech/quickcards/pkg/http"
)

type InventoryAdmin interface {
	ImportBatch(ctx context.Context, serviceID, examTypeID, batchID string, rows []model.InventoryImportRow, defaultExpiry time.Time) (*model.InventoryImportResult, error)
	Stats(ctx context.Context, serviceID string) (*model.InventoryStats, error)
	LowStock(ctx context.Context, threshold int64) ([]*model.LowStockAlert, error)
	UpdateStatus(ctx context.Context, id int64, status model.InventoryStatus, notes string) error
}

type TransactionAdmin interface {
	Stats(ctx context.Context, from, to *time.Time) (*repository.TransactionStats, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error)
	Transition(ctx context.Context, id int64, to model.TransactionStatus) error
}

type SweepRunner interface {
	RunOnce(ctx context.Context) (*sweeper.Result, error)
}

type AdminHandler struct {
	inventory    InventoryAdmin
	transactions TransactionAdmin
	sweeps       SweepRunner
}

func RegisterAdminRoutes(e *router.Group, h *AdminHandler) {
	e.POST("/inventory/import", h.ImportInventory)
	e.GET("/inventory/stats", h.GetInventoryStats)
	e.GET("/inventory/low-stock", h.GetLowStock)
	e.PATCH("/inventory/{id}/status", h.UpdateInventoryStatus)
	e.GET("/transactions/stats", h.GetTransactionStats)
	e.POST("/transactions/{transaction_id}/refund", h.RefundTransaction)
	e.POST("/sweeps", h.TriggerSweep)
}

func NewAdminHandler(inventory InventoryAdmin, transactions TransactionAdmin, sweeps SweepRunner) *AdminHandler {
	return &AdminHandler{
		inventory:    inventory,
		transactions: transactions,
		sweeps:       sweeps,
	}
}

type importInventoryRequest struct {
	ServiceID     string                     `json:"service_type_id"`
	ExamTypeID    string                     `json:"exam_type_id,omitempty"`
	BatchID       string                     `json:"batch_id,omitempty"`
	ExpiresInDays int                        `json:"expires_in_days,omitempty"`
	Items         []model.InventoryImportRow `json:"items"`
}

func (h *AdminHandler) ImportInventory(ctx *xhttp.RequestCtx) {
	var req importInventoryRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.ServiceID == "" {
		writeError(ctx, 400, "service_type_id is required")
		return
	}
	if len(req.Items) == 0 {
		writeError(ctx, 400, "items cannot be empty")
		return
	}
	if req.BatchID == "" {
		req.BatchID = uuid.NewString()
	}
	if req.ExpiresInDays <= 0 {
		req.ExpiresInDays = 365
	}

	expiry := time.Now().AddDate(0, 0, req.ExpiresInDays)
	result, err := h.inventory.ImportBatch(ctx, req.ServiceID, req.ExamTypeID, req.BatchID, req.Items, expiry)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 201, result)
}

func (h *AdminHandler) GetInventoryStats(ctx *xhttp.RequestCtx) {
	stats, err := h.inventory.Stats(ctx, query(ctx, "service_id"))
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, stats)
}

func (h *AdminHandler) GetLowStock(ctx *xhttp.RequestCtx) {
	threshold := int64(10)
	if v := query(ctx, "threshold"); v != "" {
		if n, e := strconv.ParseInt(v, 10, 64); e == nil && n > 0 {
			threshold = n
		}
	}

	alerts, err := h.inventory.LowStock(ctx, threshold)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]any{"threshold": threshold, "items": alerts})
}

type updateInventoryStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (h *AdminHandler) UpdateInventoryStatus(ctx *xhttp.RequestCtx) {
	idStr, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(ctx, 400, "invalid inventory id")
		return
	}

	var req updateInventoryStatusRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	status := model.InventoryStatus(req.Status)
	switch status {
	case model.InventoryStatusAvailable, model.InventoryStatusExpired, model.InventoryStatusDamaged:
	default:
		writeError(ctx, 400, "status must be available, expired or damaged")
		return
	}

	if err := h.inventory.UpdateStatus(ctx, id, status, req.Notes); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]string{"status": req.Status})
}

func (h *AdminHandler) GetTransactionStats(ctx *xhttp.RequestCtx) {
	var from, to *time.Time
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			from = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			to = &t
		}
	}

	stats, err := h.transactions.Stats(ctx, from, to)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, stats)
}

// RefundTransaction cancels a completed transaction. The sold checkers are
// already in the buyer's hands, so nothing returns to the pool.
func (h *AdminHandler) RefundTransaction(ctx *xhttp.RequestCtx) {
	transactionID, _ := ctx.UserValue("transaction_id").(string)

	txn, err := h.transactions.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}

	if err := h.transactions.Transition(ctx, txn.ID, model.TransactionStatusCancelled); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			writeError(ctx, 409, "only completed transactions can be refunded")
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}

	writeJSON(ctx, 200, map[string]string{
		"transaction_id": transactionID,
		"status":         string(model.TransactionStatusCancelled),
	})
}

func (h *AdminHandler) TriggerSweep(ctx *xhttp.RequestCtx) {
	result, err := h.sweeps.RunOnce(ctx)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, result)
}
