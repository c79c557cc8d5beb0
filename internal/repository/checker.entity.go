package repository

import (
	"time"

	"github.com/lamstech/quickcards/internal/model"
)

type CheckerEntity struct {
	ID            int64      `db:"id"                 gorm:"primaryKey;autoIncrement;column:id"`
	Code          string     `db:"checker_code"       gorm:"column:checker_code;not null;uniqueIndex"`
	InventoryID   int64      `db:"inventory_id"       gorm:"column:inventory_id;not null;uniqueIndex"`
	TransactionID int64      `db:"transaction_id"     gorm:"column:transaction_id;not null;index"`
	ReferenceCode string     `db:"purchase_reference" gorm:"column:purchase_reference;not null;index"`
	SerialNumber  string     `db:"serial_number"      gorm:"column:serial_number;not null"`
	PinCode       string     `db:"pin_code"           gorm:"column:pin_code;not null"`
	VoucherCode   string     `db:"voucher_code"       gorm:"column:voucher_code"`
	Status        string     `db:"status"             gorm:"column:status;not null;index"`
	ExpiresAt     *time.Time `db:"expires_at"         gorm:"column:expires_at"`
	CreatedAt     time.Time  `db:"created_at"         gorm:"column:created_at;autoCreateTime"`
}

func (CheckerEntity) TableName() string {
	return "checkers"
}

func toCheckerEntity(m *model.Checker) *CheckerEntity {
	if m == nil {
		return nil
	}
	return &CheckerEntity{
		ID:            m.ID,
		Code:          m.Code,
		InventoryID:   m.InventoryID,
		TransactionID: m.TransactionID,
		ReferenceCode: m.ReferenceCode,
		SerialNumber:  m.SerialNumber,
		PinCode:       m.PinCode,
		VoucherCode:   m.VoucherCode,
		Status:        string(m.Status),
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
	}
}

func toCheckerModel(e *CheckerEntity) *model.Checker {
	if e == nil {
		return nil
	}
	return &model.Checker{
		ID:            e.ID,
		Code:          e.Code,
		InventoryID:   e.InventoryID,
		TransactionID: e.TransactionID,
		ReferenceCode: e.ReferenceCode,
		SerialNumber:  e.SerialNumber,
		PinCode:       e.PinCode,
		VoucherCode:   e.VoucherCode,
		Status:        model.CheckerStatus(e.Status),
		ExpiresAt:     e.ExpiresAt,
		CreatedAt:     e.CreatedAt,
	}
}

func toCheckerModels(entities []*CheckerEntity) []*model.Checker {
	if entities == nil {
		return nil
	}
	models := make([]*model.Checker, len(entities))
	for i, e := range entities {
		models[i] = toCheckerModel(e)
	}
	return models
}
