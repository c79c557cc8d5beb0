package repository

import (
	"time"

	"github.com/lamstech/quickcards/internal/model"
)

type ReferenceEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	Code          string    `db:"reference_code" gorm:"column:reference_code;not null;uniqueIndex"`
	Phone         string    `db:"phone_number"   gorm:"column:phone_number;not null;index"`
	TransactionID int64     `db:"transaction_id" gorm:"column:transaction_id;not null;index"`
	ServiceID     string    `db:"service_id"     gorm:"column:service_id;not null"`
	Quantity      int       `db:"quantity"       gorm:"column:quantity;not null"`
	TotalAmount   float64   `db:"total_amount"   gorm:"column:total_amount;not null"`
	Status        string    `db:"status"         gorm:"column:status;not null;index"`
	ExpiresAt     time.Time `db:"expires_at"     gorm:"column:expires_at;index"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (ReferenceEntity) TableName() string {
	return "purchase_references"
}

func toReferenceEntity(m *model.PurchaseReference) *ReferenceEntity {
	if m == nil {
		return nil
	}
	return &ReferenceEntity{
		ID:            m.ID,
		Code:          m.Code,
		Phone:         m.Phone,
		TransactionID: m.TransactionID,
		ServiceID:     m.ServiceID,
		Quantity:      m.Quantity,
		TotalAmount:   m.TotalAmount,
		Status:        string(m.Status),
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
	}
}

func toReferenceModel(e *ReferenceEntity) *model.PurchaseReference {
	if e == nil {
		return nil
	}
	return &model.PurchaseReference{
		ID:            e.ID,
		Code:          e.Code,
		Phone:         e.Phone,
		TransactionID: e.TransactionID,
		ServiceID:     e.ServiceID,
		Quantity:      e.Quantity,
		TotalAmount:   e.TotalAmount,
		Status:        model.ReferenceStatus(e.Status),
		ExpiresAt:     e.ExpiresAt,
		CreatedAt:     e.CreatedAt,
	}
}
