package model

import (
	"time"
)

// CheckerStatus is the lifecycle state of an issued checker.
type CheckerStatus string

const (
	CheckerStatusActive  CheckerStatus = "active"
	CheckerStatusUsed    CheckerStatus = "used"
	CheckerStatusExpired CheckerStatus = "expired"
)

// Checker is one issued serial/PIN pair, bound 1:1 to the inventory item it
// was drawn from and to the completed transaction that paid for it.
type Checker struct {
	ID            int64         `json:"id"`
	Code          string        `json:"checker_code"`
	InventoryID   int64         `json:"inventory_id"`
	TransactionID int64         `json:"transaction_id"`
	ReferenceCode string        `json:"purchase_reference"`
	SerialNumber  string        `json:"serial_number"`
	PinCode       string        `json:"pin_code"`
	VoucherCode   string        `json:"voucher_code,omitempty"`
	Status        CheckerStatus `json:"status"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
