package model

import (
	"time"
)

// InventoryStatus is the lifecycle state of a stock item.
type InventoryStatus string

const (
	InventoryStatusAvailable InventoryStatus = "available"
	InventoryStatusClaimed   InventoryStatus = "claimed"
	InventoryStatusSold      InventoryStatus = "sold"
	InventoryStatusExpired   InventoryStatus = "expired"
	InventoryStatusDamaged   InventoryStatus = "damaged"
)

// InventoryItem is one sellable serial/PIN pair. Serial and PIN are unique
// and immutable after import; only the status and sale stamp fields change.
type InventoryItem struct {
	ID           int64           `json:"id"`
	ServiceID    string          `json:"service_id"`
	ExamTypeID   string          `json:"exam_type_id,omitempty"`
	SerialNumber string          `json:"serial_number"`
	PinCode      string          `json:"pin_code"`
	VoucherCode  string          `json:"voucher_code,omitempty"`
	BatchID      string          `json:"batch_id"`
	Status       InventoryStatus `json:"status"`
	SoldAt       *time.Time      `json:"sold_at,omitempty"`
	SoldToPhone  string          `json:"sold_to_phone,omitempty"`
	ReferenceCode string         `json:"purchase_reference,omitempty"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// InventoryImportRow is one parsed row of a bulk stock upload. Spreadsheet
// parsing happens upstream; rows arrive here already split into columns.
type InventoryImportRow struct {
	SerialNumber string     `json:"serial_number"`
	PinCode      string     `json:"pin_code"`
	VoucherCode  string     `json:"voucher_code,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// InventoryImportResult summarizes a batch import.
type InventoryImportResult struct {
	BatchID    string   `json:"batch_id"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// InventoryStats is the per-status breakdown for one service (or the whole pool).
type InventoryStats struct {
	Total     int64 `json:"total_cards"`
	Available int64 `json:"available_cards"`
	Claimed   int64 `json:"claimed_cards"`
	Sold      int64 `json:"sold_cards"`
	Expired   int64 `json:"expired_cards"`
	Damaged   int64 `json:"damaged_cards"`
}

// LowStockAlert flags a service whose available pool dropped under a threshold.
type LowStockAlert struct {
	ServiceID      string `json:"service_id"`
	AvailableCount int64  `json:"available_count"`
}
