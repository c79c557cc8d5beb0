package model

import (
	"time"
)

// TransactionStatus is the lifecycle state of a purchase attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusExpired    TransactionStatus = "expired"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	// TransactionStatusPaidUnfulfilled marks a paid transaction whose checker
	// issuance did not complete for every item. It needs manual reconciliation
	// and must never be reported as completed.
	TransactionStatusPaidUnfulfilled TransactionStatus = "paid_unfulfilled"
)

// transitions is the allowed state machine. Expiry applies to any
// non-terminal state; cancellation is the admin-only refund path.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusFailed, TransactionStatusExpired},
	TransactionStatusProcessing: {TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusExpired, TransactionStatusPaidUnfulfilled},
	TransactionStatusCompleted:  {TransactionStatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status accepts no further non-admin transitions.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusFailed, TransactionStatusExpired, TransactionStatusCancelled, TransactionStatusPaidUnfulfilled:
		return true
	}
	return false
}

// Transaction is one purchase attempt. Quantity and pricing are frozen at
// creation and never recomputed; the record itself is never deleted.
type Transaction struct {
	ID            int64             `json:"id"`
	TransactionID string            `json:"transaction_id"`
	PrintID       string            `json:"print_id"`
	ServiceID     string            `json:"service_id"`
	ExamTypeID    string            `json:"exam_type_id,omitempty"`
	Quantity      int               `json:"quantity"`
	UnitPrice     float64           `json:"unit_price"`
	TotalAmount   float64           `json:"total_amount"`
	Phone         string            `json:"phone_number"`
	ProviderID    string            `json:"momo_provider_id"`
	PaymentRef    string            `json:"payment_reference,omitempty"`
	ClaimToken    string            `json:"-"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
}
