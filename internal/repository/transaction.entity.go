package repository

import (
	"time"

	"github.com/lamstech/quickcards/internal/model"
)

type TransactionEntity struct {
	ID            int64      `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	TransactionID string     `db:"transaction_id"   gorm:"column:transaction_id;not null;uniqueIndex"`
	PrintID       string     `db:"print_id"         gorm:"column:print_id;not null;uniqueIndex"`
	ServiceID     string     `db:"service_id"       gorm:"column:service_id;not null;index"`
	ExamTypeID    string     `db:"exam_type_id"     gorm:"column:exam_type_id"`
	Quantity      int        `db:"quantity"         gorm:"column:quantity;not null"`
	UnitPrice     float64    `db:"unit_price"       gorm:"column:unit_price;not null"`
	TotalAmount   float64    `db:"total_amount"     gorm:"column:total_amount;not null"`
	Phone         string     `db:"phone_number"     gorm:"column:phone_number;not null;index"`
	ProviderID    string     `db:"momo_provider_id" gorm:"column:momo_provider_id;not null"`
	PaymentRef    string     `db:"payment_reference" gorm:"column:payment_reference"`
	ClaimToken    string     `db:"claim_token"      gorm:"column:claim_token;index"`
	Status        string     `db:"status"           gorm:"column:status;not null;index"`
	CreatedAt     time.Time  `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	ExpiresAt     time.Time  `db:"expires_at"       gorm:"column:expires_at;index"`
	PaidAt        *time.Time `db:"paid_at"          gorm:"column:paid_at"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		PrintID:       m.PrintID,
		ServiceID:     m.ServiceID,
		ExamTypeID:    m.ExamTypeID,
		Quantity:      m.Quantity,
		UnitPrice:     m.UnitPrice,
		TotalAmount:   m.TotalAmount,
		Phone:         m.Phone,
		ProviderID:    m.ProviderID,
		PaymentRef:    m.PaymentRef,
		ClaimToken:    m.ClaimToken,
		Status:        string(m.Status),
		CreatedAt:     m.CreatedAt,
		ExpiresAt:     m.ExpiresAt,
		PaidAt:        m.PaidAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		PrintID:       e.PrintID,
		ServiceID:     e.ServiceID,
		ExamTypeID:    e.ExamTypeID,
		Quantity:      e.Quantity,
		UnitPrice:     e.UnitPrice,
		TotalAmount:   e.TotalAmount,
		Phone:         e.Phone,
		ProviderID:    e.ProviderID,
		PaymentRef:    e.PaymentRef,
		ClaimToken:    e.ClaimToken,
		Status:        model.TransactionStatus(e.Status),
		CreatedAt:     e.CreatedAt,
		ExpiresAt:     e.ExpiresAt,
		PaidAt:        e.PaidAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	if entities == nil {
		return nil
	}
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
