package model

import (
	"time"
)

// ReferenceStatus is the lifecycle state of a purchase reference.
type ReferenceStatus string

const (
	ReferenceStatusActive  ReferenceStatus = "active"
	ReferenceStatusUsed    ReferenceStatus = "used"
	ReferenceStatusExpired ReferenceStatus = "expired"
)

// PurchaseReference is the durable handle a buyer uses to re-fetch issued
// checkers. It is retrievable only by the exact (code, phone) pair that
// created it, and only while active and unexpired.
type PurchaseReference struct {
	ID            int64           `json:"id"`
	Code          string          `json:"reference_code"`
	Phone         string          `json:"phone_number"`
	TransactionID int64           `json:"transaction_id"`
	ServiceID     string          `json:"service_id"`
	Quantity      int             `json:"quantity"`
	TotalAmount   float64         `json:"total_amount"`
	Status        ReferenceStatus `json:"status"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
}
