package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRejected means the provider refused to even start the charge
	// (unknown subscriber, unsupported wallet, malformed request).
	ErrRejected = errors.New("payment request rejected by provider")
	ErrUnknownReference = errors.New("unknown payment reference")
)

// Status is the provider-side state of a charge.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether the provider will not change this status again.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ChargeRequest asks the provider to bill a mobile money wallet.
type ChargeRequest struct {
	TransactionID string  `json:"transaction_id"`
	Phone         string  `json:"phone_number"`
	ProviderID    string  `json:"provider_id"`
	Amount        float64 `json:"amount"`
	Description   string  `json:"description"`
}

// ChargeResponse acknowledges an accepted charge. The charge itself
// completes asynchronously; Verify polls for the outcome.
type ChargeResponse struct {
	PaymentRef string    `json:"payment_reference"`
	Status     Status    `json:"status"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// VerifyResponse is a point-in-time snapshot of a charge's state.
type VerifyResponse struct {
	PaymentRef string `json:"payment_reference"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
}

// Adapter is the port to a mobile money provider. Initialize starts a
// charge; Verify reads its current state. Implementations make exactly one
// provider call per invocation and leave polling policy to the caller.
type Adapter interface {
	Initialize(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
	Verify(ctx context.Context, paymentRef string) (*VerifyResponse, error)
}
