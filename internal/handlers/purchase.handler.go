package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/lamstech/quickcards/internal/idempotency"
	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/internal/services"
	xhttp "github.com/lamstech/quickcards/pkg/http"
)

type PurchaseService interface {
	Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error)
	Retrieve(ctx context.Context, req model.RetrieveRequest) (*model.RetrieveResult, error)
	History(ctx context.Context, phone string, limit int) ([]*model.Transaction, error)
	Availability(ctx context.Context, serviceID, examTypeID string) (int64, error)
	Receipt(ctx context.Context, transactionID string) (string, error)
}

// IdempotencyGuard rejects duplicate purchase submissions carrying the same
// Idempotency-Key header.
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string) (*idempotency.Token, error)
	MarkDone(ctx context.Context, t *idempotency.Token) error
	Release(ctx context.Context, t *idempotency.Token) error
}

type PurchaseHandler struct {
	svc   PurchaseService
	guard IdempotencyGuard
}

func RegisterPurchaseRoutes(e *router.Group, h *PurchaseHandler) {
	e.POST("/purchases", h.CreatePurchase)
	e.POST("/retrievals", h.RetrieveCheckers)
	e.GET("/transactions", h.ListTransactions)
	e.GET("/services/{id}/availability", h.GetAvailability)
	e.GET("/receipts/{transaction_id}", h.GetReceipt)
}

func NewPurchaseHandler(purchaseService PurchaseService, guard IdempotencyGuard) *PurchaseHandler {
	return &PurchaseHandler{
		svc:   purchaseService,
		guard: guard,
	}
}

/* --------------------------------- Routes ----------------------------------- */

func (h *PurchaseHandler) CreatePurchase(ctx *xhttp.RequestCtx) {
	var req model.PurchaseRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	var token *idempotency.Token
	if key := string(ctx.Request.Header.Peek("Idempotency-Key")); key != "" && h.guard != nil {
		t, err := h.guard.Acquire(ctx, key)
		if err != nil {
			if errors.Is(err, idempotency.ErrDuplicate) || errors.Is(err, idempotency.ErrInFlight) {
				writeError(ctx, 409, err.Error())
				return
			}
			writeError(ctx, 500, err.Error())
			return
		}
		token = t
	}

	result, err := h.svc.Purchase(ctx, req)
	if err != nil {
		if token != nil {
			_ = h.guard.Release(ctx, token)
		}
		writeError(ctx, purchaseErrorStatus(err), err.Error())
		return
	}
	if token != nil {
		_ = h.guard.MarkDone(ctx, token)
	}
	writeJSON(ctx, 201, result)
}

func (h *PurchaseHandler) RetrieveCheckers(ctx *xhttp.RequestCtx) {
	var req model.RetrieveRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	result, err := h.svc.Retrieve(ctx, req)
	if err != nil {
		if errors.Is(err, services.ErrReferenceNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, result)
}

func (h *PurchaseHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	phone := query(ctx, "phone")
	limit := 10
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			limit = n
		}
	}

	items, err := h.svc.History(ctx, phone, limit)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]any{"items": items})
}

func (h *PurchaseHandler) GetAvailability(ctx *xhttp.RequestCtx) {
	serviceID, _ := ctx.UserValue("id").(string)
	examTypeID := query(ctx, "exam_type_id")

	count, err := h.svc.Availability(ctx, serviceID, examTypeID)
	if err != nil {
		if errors.Is(err, model.ErrServiceNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]any{
		"service_id": serviceID,
		"available":  count,
	})
}

func (h *PurchaseHandler) GetReceipt(ctx *xhttp.RequestCtx) {
	transactionID, _ := ctx.UserValue("transaction_id").(string)

	url, err := h.svc.Receipt(ctx, transactionID)
	if err != nil {
		writeError(ctx, 404, err.Error())
		return
	}
	writeJSON(ctx, 200, map[string]any{"url": url})
}

// purchaseErrorStatus maps the purchase failure modes onto HTTP codes:
// conflict for stock, payment-required for charge failures, bad request
// for everything the buyer can fix.
func purchaseErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrOutOfStock):
		return 409
	case errors.Is(err, services.ErrPaymentRejected),
		errors.Is(err, services.ErrPaymentFailed),
		errors.Is(err, services.ErrPaymentTimeout):
		return 402
	case errors.Is(err, services.ErrUnfulfilled):
		return 500
	case errors.Is(err, model.ErrServiceNotFound):
		return 404
	default:
		return 400
	}
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
