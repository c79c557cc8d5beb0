package fixtures

import (
	"fmt"
	"time"

	"github.com/lamstech/quickcards/internal/model"
)

func NewPurchaseRequest(serviceID, phone string, quantity int) model.PurchaseRequest {
	return model.PurchaseRequest{
		ServiceID:  serviceID,
		Quantity:   quantity,
		Phone:      phone,
		ProviderID: "mtn",
	}
}

func NewRetrieveRequest(code, phone string) model.RetrieveRequest {
	return model.RetrieveRequest{
		Phone:         phone,
		ReferenceCode: code,
	}
}

func NewInventoryRows(count int) []model.InventoryImportRow {
	rows := make([]model.InventoryImportRow, count)
	for i := range rows {
		rows[i] = model.InventoryImportRow{
			SerialNumber: fmt.Sprintf("WEC%08d", i+1),
			PinCode:      fmt.Sprintf("%012d", i+1),
		}
	}
	return rows
}

func NewTransaction(serviceID, phone string, quantity int, status model.TransactionStatus) *model.Transaction {
	now := time.Now()
	return &model.Transaction{
		TransactionID: fmt.Sprintf("TXN-%d", now.UnixNano()),
		PrintID:       fmt.Sprintf("PRN-%d", now.UnixNano()),
		ServiceID:     serviceID,
		Quantity:      quantity,
		UnitPrice:     17.5,
		TotalAmount:   17.5 * float64(quantity),
		Phone:         phone,
		ProviderID:    "mtn",
		Status:        status,
		CreatedAt:     now,
		ExpiresAt:     now.Add(10 * time.Minute),
	}
}

var (
	ValidPhoneNumbers = []string{
		"0244123456",
		"0501234567",
		"0277654321",
		"0209876543",
	}

	InvalidPhoneNumbers = []string{
		"",
		"123",
		"0144123456",
		"+233244123456",
		"02441234567",
		"abc1234567",
	}
)

func PurchaseRequestNormal() model.PurchaseRequest {
	return NewPurchaseRequest("waec", "0244123456", 1)
}

func PurchaseRequestBulk() model.PurchaseRequest {
	return NewPurchaseRequest("waec", "0244123456", 25)
}

func PurchaseRequestInvalidPhone() model.PurchaseRequest {
	return NewPurchaseRequest("waec", "123", 1)
}

func PurchaseRequestMissingService() model.PurchaseRequest {
	return NewPurchaseRequest("", "0244123456", 1)
}

func PurchaseRequestExcessQuantity() model.PurchaseRequest {
	return NewPurchaseRequest("waec", "0244123456", model.MaxPurchaseQuantity+1)
}
