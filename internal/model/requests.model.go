package model

import (
	"errors"
	"regexp"
	"strings"
)

const (
	MinPurchaseQuantity = 1
	MaxPurchaseQuantity = 200
)

var (
	ErrInvalidPhone    = errors.New("invalid phone number format")
	ErrInvalidQuantity = errors.New("invalid quantity, must be between 1 and 200")
	ErrMissingService  = errors.New("service_id is required")
	ErrMissingProvider = errors.New("momo_provider_id is required")
	ErrMissingRefCode  = errors.New("reference_code is required")
)

// phonePattern matches the local ten-digit mobile format: leading 0,
// second digit 2-9.
var phonePattern = regexp.MustCompile(`^0[2-9]\d{8}$`)

// ValidPhone reports whether s is a well-formed local mobile number.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// PurchaseRequest is the input for buying checkers.
type PurchaseRequest struct {
	ServiceID  string `json:"service_type_id"`
	ExamTypeID string `json:"exam_type_id,omitempty"`
	Quantity   int    `json:"quantity"`
	Phone      string `json:"phone_number"`
	ProviderID string `json:"momo_provider_id"`
}

func (p *PurchaseRequest) Validate() error {
	p.Phone = strings.TrimSpace(p.Phone)
	if p.ServiceID == "" {
		return ErrMissingService
	}
	if p.ProviderID == "" {
		return ErrMissingProvider
	}
	if !ValidPhone(p.Phone) {
		return ErrInvalidPhone
	}
	if p.Quantity < MinPurchaseQuantity || p.Quantity > MaxPurchaseQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// RetrieveRequest is the input for re-fetching previously issued checkers.
// Reference codes are case-normalized to uppercase on input.
type RetrieveRequest struct {
	Phone         string `json:"phone_number"`
	ReferenceCode string `json:"reference_code"`
	ResendSMS     bool   `json:"resend_sms,omitempty"`
}

func (r *RetrieveRequest) Validate() error {
	r.Phone = strings.TrimSpace(r.Phone)
	r.ReferenceCode = strings.ToUpper(strings.TrimSpace(r.ReferenceCode))
	if r.ReferenceCode == "" {
		return ErrMissingRefCode
	}
	if !ValidPhone(r.Phone) {
		return ErrInvalidPhone
	}
	return nil
}

// PurchaseResult is the outcome of a completed purchase.
type PurchaseResult struct {
	TransactionID string     `json:"transaction_id"`
	PrintID       string     `json:"print_id"`
	ReferenceCode string     `json:"reference_code"`
	ServiceName   string     `json:"service_name"`
	Quantity      int        `json:"quantity"`
	TotalAmount   float64    `json:"total_amount"`
	Checkers      []*Checker `json:"checkers"`
	SMSSent       bool       `json:"sms_sent"`
	PDFURL        *string    `json:"pdf_url"`
}

// RetrieveResult is the outcome of a reference lookup.
type RetrieveResult struct {
	Transaction   *Transaction `json:"transaction"`
	ReferenceCode string       `json:"reference_code"`
	ServiceName   string       `json:"service_name"`
	Checkers      []*Checker   `json:"checkers"`
	SMSResent     bool         `json:"sms_resent,omitempty"`
	PDFURL        *string      `json:"pdf_url"`
}
