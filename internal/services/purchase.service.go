package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/internal/notify"
	"github.com/lamstech/quickcards/internal/payment"
	"github.com/lamstech/quickcards/internal/receipt"
	"github.com/lamstech/quickcards/internal/repository"
	"github.com/lamstech/quickcards/pkg/logger"
	"github.com/lamstech/quickcards/pkg/prom"
)

var (
	ErrOutOfStock        = errors.New("insufficient stock available")
	ErrInvalidExamType   = errors.New("exam type does not belong to this service")
	ErrPaymentRejected   = errors.New("payment request was rejected")
	ErrPaymentFailed     = errors.New("payment failed")
	ErrPaymentTimeout    = errors.New("payment was not confirmed in time")
	ErrReferenceNotFound = errors.New("reference not found for this phone number")
	ErrUnfulfilled       = errors.New("payment received but checkers could not be issued")
)

type InventoryRepository interface {
	Claim(ctx context.Context, serviceID, examTypeID string, quantity int, token string) ([]*model.InventoryItem, error)
	CommitSale(ctx context.Context, token, phone, referenceCode string) error
	Release(ctx context.Context, token string) error
	CountAvailable(ctx context.Context, serviceID, examTypeID string) (int64, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Transition(ctx context.Context, id int64, to model.TransactionStatus) error
	SetPaymentRef(ctx context.Context, id int64, ref string) error
	FindByID(ctx context.Context, id int64) (*model.Transaction, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error)
	FindByPhone(ctx context.Context, phone string, limit int) ([]*model.Transaction, error)
}

type ReferenceRepository interface {
	Create(ctx context.Context, ref *model.PurchaseReference) (*model.PurchaseReference, error)
	FindActiveByCodeAndPhone(ctx context.Context, code, phone string, now time.Time) (*model.PurchaseReference, error)
	MarkUsed(ctx context.Context, code string) error
}

type CheckerFinder interface {
	FindByReference(ctx context.Context, referenceCode string) ([]*model.Checker, error)
	FindByTransaction(ctx context.Context, transactionID int64) ([]*model.Checker, error)
}

// Notifier sends the checker SMS and reports whether it was delivered
// immediately. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, phone, message string) (bool, error)
}

// PurchaseConfig carries the timing policy of a purchase.
type PurchaseConfig struct {
	// PaymentWindow bounds the whole purchase attempt; the transaction
	// expires when it elapses unpaid.
	PaymentWindow time.Duration
	// PollInterval is the delay between payment status checks.
	PollInterval time.Duration
	// PollTimeout bounds the synchronous wait for payment confirmation.
	// An unconfirmed charge at the deadline fails the purchase.
	PollTimeout time.Duration
	// ReferenceTTL is how long a purchase reference stays retrievable.
	ReferenceTTL time.Duration
}

func (c *PurchaseConfig) withDefaults() {
	if c.PaymentWindow <= 0 {
		c.PaymentWindow = 5 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 90 * time.Second
	}
	if c.ReferenceTTL <= 0 {
		c.ReferenceTTL = 365 * 24 * time.Hour
	}
}

// PurchaseService runs the purchase lifecycle: claim stock, create the
// transaction, charge the wallet, and on confirmation issue checkers under
// a fresh reference code. Stock is claimed before the charge so a buyer
// can never pay for items the shop no longer holds; every failure after
// the claim releases it.
type PurchaseService struct {
	inventory    InventoryRepository
	transactions TransactionRepository
	references   ReferenceRepository
	checkers     CheckerFinder
	issuer       *CheckerService
	refCodes     *ReferenceService
	catalog      *model.Catalog
	payments     payment.Adapter
	notifier     Notifier
	receipts     receipt.Generator
	config       PurchaseConfig
	nowFn        func() time.Time
}

func NewPurchaseService(
	inventory InventoryRepository,
	transactions TransactionRepository,
	references ReferenceRepository,
	checkers CheckerFinder,
	issuer *CheckerService,
	refCodes *ReferenceService,
	catalog *model.Catalog,
	payments payment.Adapter,
	notifier Notifier,
	receipts receipt.Generator,
	config PurchaseConfig,
) *PurchaseService {
	config.withDefaults()
	if receipts == nil {
		receipts = receipt.NoopGenerator{}
	}
	return &PurchaseService{
		inventory:    inventory,
		transactions: transactions,
		references:   references,
		checkers:     checkers,
		issuer:       issuer,
		refCodes:     refCodes,
		catalog:      catalog,
		payments:     payments,
		notifier:     notifier,
		receipts:     receipts,
		config:       config,
		nowFn:        time.Now,
	}
}

// Purchase executes one buy attempt end to end and blocks until the
// payment settles or the poll deadline passes.
func (s *PurchaseService) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	started := s.nowFn()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	svc, err := s.catalog.Service(req.ServiceID)
	if err != nil {
		return nil, err
	}
	if req.ExamTypeID != "" && !hasExamType(svc, req.ExamTypeID) {
		return nil, ErrInvalidExamType
	}

	unitPrice, err := s.catalog.UnitPrice(req.ServiceID, req.Quantity)
	if err != nil {
		return nil, err
	}
	total := round2(unitPrice * float64(req.Quantity))

	token := uuid.NewString()
	items, err := s.inventory.Claim(ctx, req.ServiceID, req.ExamTypeID, req.Quantity, token)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, fmt.Errorf("%w: %v", ErrOutOfStock, err)
		}
		return nil, fmt.Errorf("claim inventory: %w", err)
	}

	txn, err := s.transactions.Create(ctx, &model.Transaction{
		ServiceID:   req.ServiceID,
		ExamTypeID:  req.ExamTypeID,
		Quantity:    req.Quantity,
		UnitPrice:   unitPrice,
		TotalAmount: total,
		Phone:       req.Phone,
		ProviderID:  req.ProviderID,
		ClaimToken:  token,
		ExpiresAt:   s.nowFn().Add(s.config.PaymentWindow),
	})
	if err != nil {
		s.releaseClaim(token)
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	logger.Info("Purchase started",
		"transaction_id", txn.TransactionID, "service_id", req.ServiceID,
		"quantity", req.Quantity, "total", total)

	charge, err := s.payments.Initialize(ctx, &payment.ChargeRequest{
		TransactionID: txn.TransactionID,
		Phone:         req.Phone,
		ProviderID:    req.ProviderID,
		Amount:        total,
		Description:   fmt.Sprintf("%d x %s", req.Quantity, svc.Name),
	})
	if err != nil {
		s.abort(txn.ID, token)
		if errors.Is(err, payment.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrPaymentRejected, err)
		}
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	if err := s.transactions.SetPaymentRef(ctx, txn.ID, charge.PaymentRef); err != nil {
		s.abort(txn.ID, token)
		return nil, fmt.Errorf("record payment reference: %w", err)
	}
	if err := s.transactions.Transition(ctx, txn.ID, model.TransactionStatusProcessing); err != nil {
		s.abort(txn.ID, token)
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	if err := s.awaitPayment(ctx, charge.PaymentRef); err != nil {
		s.failTransaction(txn.ID)
		s.releaseClaim(token)
		prom.IncPurchaseFailed(req.ServiceID, "payment")
		return nil, err
	}

	result, err := s.fulfill(ctx, txn, svc, token, items)
	if err != nil {
		prom.IncPurchaseFailed(req.ServiceID, "fulfillment")
		return nil, err
	}
	prom.IncPurchaseCompleted(req.ServiceID)
	prom.AddPurchaseDuration(s.nowFn().Sub(started).Seconds(), req.ServiceID)
	return result, nil
}

// awaitPayment polls Verify until the charge settles or the deadline hits.
func (s *PurchaseService) awaitPayment(ctx context.Context, paymentRef string) error {
	deadline := s.nowFn().Add(s.config.PollTimeout)
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		status, err := s.payments.Verify(ctx, paymentRef)
		if err != nil {
			logger.Warn("Payment verify failed", "payment_ref", paymentRef, "error", err)
		} else {
			switch status.Status {
			case payment.StatusSuccess:
				return nil
			case payment.StatusFailed:
				if status.Message != "" {
					return fmt.Errorf("%w: %s", ErrPaymentFailed, status.Message)
				}
				return ErrPaymentFailed
			}
		}

		if !s.nowFn().Before(deadline) {
			return ErrPaymentTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fulfill runs the post-payment steps. The money is already taken, so a
// failure here never releases the claim; the transaction is parked as
// paid_unfulfilled for reconciliation instead.
func (s *PurchaseService) fulfill(ctx context.Context, txn *model.Transaction, svc model.ServiceType, token string, items []*model.InventoryItem) (*model.PurchaseResult, error) {
	refCode, err := s.refCodes.Generate(ctx, txn.Phone)
	if err != nil {
		s.park(txn.ID)
		return nil, fmt.Errorf("%w: %v", ErrUnfulfilled, err)
	}

	if err := s.inventory.CommitSale(ctx, token, txn.Phone, refCode); err != nil {
		s.park(txn.ID)
		return nil, fmt.Errorf("%w: %v", ErrUnfulfilled, err)
	}

	checkers, err := s.issuer.Issue(ctx, txn, refCode, items)
	if err != nil {
		s.park(txn.ID)
		return nil, fmt.Errorf("%w: %v", ErrUnfulfilled, err)
	}

	now := s.nowFn()
	if _, err := s.references.Create(ctx, &model.PurchaseReference{
		Code:          refCode,
		Phone:         txn.Phone,
		TransactionID: txn.ID,
		ServiceID:     txn.ServiceID,
		Quantity:      txn.Quantity,
		TotalAmount:   txn.TotalAmount,
		ExpiresAt:     now.Add(s.config.ReferenceTTL),
	}); err != nil {
		s.park(txn.ID)
		return nil, fmt.Errorf("%w: %v", ErrUnfulfilled, err)
	}

	if err := s.transactions.Transition(ctx, txn.ID, model.TransactionStatusCompleted); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	result := &model.PurchaseResult{
		TransactionID: txn.TransactionID,
		PrintID:       txn.PrintID,
		ReferenceCode: refCode,
		ServiceName:   svc.Name,
		Quantity:      txn.Quantity,
		TotalAmount:   txn.TotalAmount,
		Checkers:      checkers,
	}

	if s.notifier != nil {
		sent, err := s.notifier.Send(ctx, txn.Phone, notify.BuildCheckerMessage(svc.Name, refCode, checkers))
		if err != nil {
			logger.Warn("Checker SMS could not be sent or queued", "transaction_id", txn.TransactionID, "error", err)
		}
		result.SMSSent = sent
	}

	if url, err := s.receipts.Generate(ctx, &receipt.Receipt{
		PrintID:       txn.PrintID,
		TransactionID: txn.TransactionID,
		ReferenceCode: refCode,
		ServiceName:   svc.Name,
		Phone:         txn.Phone,
		Quantity:      txn.Quantity,
		UnitPrice:     txn.UnitPrice,
		TotalAmount:   txn.TotalAmount,
		Checkers:      checkers,
		IssuedAt:      now,
	}); err != nil {
		logger.Warn("Receipt generation failed", "transaction_id", txn.TransactionID, "error", err)
	} else if url != "" {
		result.PDFURL = &url
	}

	logger.Info("Purchase completed",
		"transaction_id", txn.TransactionID, "reference_code", refCode, "checkers", len(checkers))

	return result, nil
}

// Retrieve re-fetches the checkers issued under a reference code. The code
// resolves only for the exact phone that bought it.
func (s *PurchaseService) Retrieve(ctx context.Context, req model.RetrieveRequest) (*model.RetrieveResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !ValidFormat(req.ReferenceCode) {
		return nil, ErrReferenceNotFound
	}

	ref, err := s.references.FindActiveByCodeAndPhone(ctx, req.ReferenceCode, req.Phone, s.nowFn())
	if err != nil {
		if errors.Is(err, repository.ErrReferenceNotFound) {
			return nil, ErrReferenceNotFound
		}
		return nil, fmt.Errorf("find reference: %w", err)
	}

	txn, err := s.transactions.FindByID(ctx, ref.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}

	checkers, err := s.checkers.FindByReference(ctx, ref.Code)
	if err != nil {
		return nil, fmt.Errorf("find checkers: %w", err)
	}

	serviceName := ref.ServiceID
	if svc, err := s.catalog.Service(ref.ServiceID); err == nil {
		serviceName = svc.Name
	}

	result := &model.RetrieveResult{
		Transaction:   txn,
		ReferenceCode: ref.Code,
		ServiceName:   serviceName,
		Checkers:      checkers,
	}

	if req.ResendSMS && s.notifier != nil {
		sent, err := s.notifier.Send(ctx, req.Phone, notify.BuildCheckerMessage(serviceName, ref.Code, checkers))
		if err != nil {
			logger.Warn("Checker SMS resend failed", "reference_code", ref.Code, "error", err)
		}
		result.SMSResent = sent
	}

	if url, err := s.receipts.Generate(ctx, &receipt.Receipt{
		PrintID:       txn.PrintID,
		TransactionID: txn.TransactionID,
		ReferenceCode: ref.Code,
		ServiceName:   serviceName,
		Phone:         txn.Phone,
		Quantity:      txn.Quantity,
		UnitPrice:     txn.UnitPrice,
		TotalAmount:   txn.TotalAmount,
		Checkers:      checkers,
		IssuedAt:      txn.CreatedAt,
	}); err != nil {
		logger.Warn("Receipt regeneration failed", "reference_code", ref.Code, "error", err)
	} else if url != "" {
		result.PDFURL = &url
	}

	return result, nil
}

// History lists a buyer's recent transactions.
func (s *PurchaseService) History(ctx context.Context, phone string, limit int) ([]*model.Transaction, error) {
	if !model.ValidPhone(phone) {
		return nil, model.ErrInvalidPhone
	}
	return s.transactions.FindByPhone(ctx, phone, limit)
}

// Availability reports the sellable pool size for a service.
func (s *PurchaseService) Availability(ctx context.Context, serviceID, examTypeID string) (int64, error) {
	if _, err := s.catalog.Service(serviceID); err != nil {
		return 0, err
	}
	return s.inventory.CountAvailable(ctx, serviceID, examTypeID)
}

// Receipt regenerates the printable receipt for a completed transaction.
func (s *PurchaseService) Receipt(ctx context.Context, transactionID string) (string, error) {
	txn, err := s.transactions.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return "", err
	}
	if txn.Status != model.TransactionStatusCompleted {
		return "", fmt.Errorf("transaction %s is not completed", transactionID)
	}

	checkers, err := s.checkers.FindByTransaction(ctx, txn.ID)
	if err != nil {
		return "", fmt.Errorf("find checkers: %w", err)
	}

	serviceName := txn.ServiceID
	refCode := ""
	if len(checkers) > 0 {
		refCode = checkers[0].ReferenceCode
	}
	if svc, err := s.catalog.Service(txn.ServiceID); err == nil {
		serviceName = svc.Name
	}

	return s.receipts.Generate(ctx, &receipt.Receipt{
		PrintID:       txn.PrintID,
		TransactionID: txn.TransactionID,
		ReferenceCode: refCode,
		ServiceName:   serviceName,
		Phone:         txn.Phone,
		Quantity:      txn.Quantity,
		UnitPrice:     txn.UnitPrice,
		TotalAmount:   txn.TotalAmount,
		Checkers:      checkers,
		IssuedAt:      s.nowFn(),
	})
}

// abort fails a transaction that never reached the provider and releases
// its claim.
func (s *PurchaseService) abort(txnID int64, token string) {
	s.failTransaction(txnID)
	s.releaseClaim(token)
}

func (s *PurchaseService) failTransaction(txnID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transactions.Transition(ctx, txnID, model.TransactionStatusFailed); err != nil {
		logger.Error("Failed to mark transaction failed", "id", txnID, "error", err)
	}
}

func (s *PurchaseService) park(txnID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transactions.Transition(ctx, txnID, model.TransactionStatusPaidUnfulfilled); err != nil {
		logger.Error("Failed to park transaction for reconciliation", "id", txnID, "error", err)
	}
}

// releaseClaim uses a background context so cleanup still runs when the
// request context is already cancelled.
func (s *PurchaseService) releaseClaim(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.inventory.Release(ctx, token); err != nil {
		logger.Error("Failed to release inventory claim", "token", token, "error", err)
	}
}

func hasExamType(svc model.ServiceType, examTypeID string) bool {
	for _, et := range svc.ExamTypes {
		if et.ID == examTypeID {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
