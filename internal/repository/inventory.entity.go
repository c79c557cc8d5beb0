package repository

import (
	"time"

	"github.com/lamstech/quickcards/internal/model"
)

type InventoryEntity struct {
	ID            int64      `db:"id"                 gorm:"primaryKey;autoIncrement;column:id"`
	ServiceID     string     `db:"service_id"         gorm:"column:service_id;not null;index:idx_inventory_pool,priority:1"`
	ExamTypeID    string     `db:"exam_type_id"       gorm:"column:exam_type_id;index:idx_inventory_pool,priority:2"`
	SerialNumber  string     `db:"serial_number"      gorm:"column:serial_number;not null;uniqueIndex"`
	PinCode       string     `db:"pin_code"           gorm:"column:pin_code;not null;uniqueIndex"`
	VoucherCode   string     `db:"voucher_code"       gorm:"column:voucher_code"`
	BatchID       string     `db:"batch_id"           gorm:"column:batch_id;index"`
	Status        string     `db:"status"             gorm:"column:status;not null;default:available;index:idx_inventory_pool,priority:3"`
	ClaimToken    string     `db:"claim_token"        gorm:"column:claim_token;index"`
	ClaimedAt     *time.Time `db:"claimed_at"         gorm:"column:claimed_at"`
	SoldAt        *time.Time `db:"sold_at"            gorm:"column:sold_at"`
	SoldToPhone   string     `db:"sold_to_phone"      gorm:"column:sold_to_phone"`
	ReferenceCode string     `db:"purchase_reference" gorm:"column:purchase_reference;index"`
	ExpiresAt     *time.Time `db:"expires_at"         gorm:"column:expires_at"`
	Notes         string     `db:"notes"              gorm:"column:notes"`
	CreatedAt     time.Time  `db:"created_at"         gorm:"column:created_at;autoCreateTime"`
}

func (InventoryEntity) TableName() string {
	return "pincode_inventory"
}

func toInventoryEntity(m *model.InventoryItem) *InventoryEntity {
	if m == nil {
		return nil
	}
	return &InventoryEntity{
		ID:            m.ID,
		ServiceID:     m.ServiceID,
		ExamTypeID:    m.ExamTypeID,
		SerialNumber:  m.SerialNumber,
		PinCode:       m.PinCode,
		VoucherCode:   m.VoucherCode,
		BatchID:       m.BatchID,
		Status:        string(m.Status),
		SoldAt:        m.SoldAt,
		SoldToPhone:   m.SoldToPhone,
		ReferenceCode: m.ReferenceCode,
		ExpiresAt:     m.ExpiresAt,
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt,
	}
}

func toInventoryModel(e *InventoryEntity) *model.InventoryItem {
	if e == nil {
		return nil
	}
	return &model.InventoryItem{
		ID:            e.ID,
		ServiceID:     e.ServiceID,
		ExamTypeID:    e.ExamTypeID,
		SerialNumber:  e.SerialNumber,
		PinCode:       e.PinCode,
		VoucherCode:   e.VoucherCode,
		BatchID:       e.BatchID,
		Status:        model.InventoryStatus(e.Status),
		SoldAt:        e.SoldAt,
		SoldToPhone:   e.SoldToPhone,
		ReferenceCode: e.ReferenceCode,
		ExpiresAt:     e.ExpiresAt,
		Notes:         e.Notes,
		CreatedAt:     e.CreatedAt,
	}
}

func toInventoryModels(entities []*InventoryEntity) []*model.InventoryItem {
	if entities == nil {
		return nil
	}
	models := make([]*model.InventoryItem, len(entities))
	for i, e := range entities {
		models[i] = toInventoryModel(e)
	}
	return models
}
