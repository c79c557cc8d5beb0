package receipt

import (
	"context"
	"time"

	"github.com/lamstech/quickcards/internal/model"
)

// Receipt is the data rendered onto a printable purchase receipt.
type Receipt struct {
	PrintID       string           `json:"print_id"`
	TransactionID string           `json:"transaction_id"`
	ReferenceCode string           `json:"reference_code"`
	ServiceName   string           `json:"service_name"`
	Phone         string           `json:"phone_number"`
	Quantity      int              `json:"quantity"`
	UnitPrice     float64          `json:"unit_price"`
	TotalAmount   float64          `json:"total_amount"`
	Checkers      []*model.Checker `json:"checkers"`
	IssuedAt      time.Time        `json:"issued_at"`
}

// Generator renders a receipt and returns a URL the buyer can fetch it
// from. Generation is best-effort; callers treat an error or an empty URL
// as "no receipt" and carry on.
type Generator interface {
	Generate(ctx context.Context, r *Receipt) (string, error)
}

// NoopGenerator disables receipts. It satisfies the port with an empty URL
// so wiring stays uniform when no render service is configured.
type NoopGenerator struct{}

func (NoopGenerator) Generate(context.Context, *Receipt) (string, error) {
	return "", nil
}
