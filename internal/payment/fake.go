package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeAdapter is an in-process provider for local development. A charge is
// accepted immediately and settles to success after SettleAfter verify
// calls, so the polling loop gets exercised. Phone numbers ending in "0000"
// always fail, which gives a reproducible failure path.
type FakeAdapter struct {
	SettleAfter int

	mu      sync.Mutex
	charges map[string]*fakeCharge
}

type fakeCharge struct {
	phone    string
	verifies int
}

func NewFakeAdapter(settleAfter int) *FakeAdapter {
	return &FakeAdapter{
		SettleAfter: settleAfter,
		charges:     make(map[string]*fakeCharge),
	}
}

func (a *FakeAdapter) Initialize(_ context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrRejected)
	}

	ref := "FAKE-" + uuid.NewString()

	a.mu.Lock()
	a.charges[ref] = &fakeCharge{phone: req.Phone}
	a.mu.Unlock()

	return &ChargeResponse{
		PaymentRef: ref,
		Status:     StatusPending,
		AcceptedAt: time.Now(),
	}, nil
}

func (a *FakeAdapter) Verify(_ context.Context, paymentRef string) (*VerifyResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	charge, ok := a.charges[paymentRef]
	if !ok {
		return nil, ErrUnknownReference
	}

	charge.verifies++
	if charge.verifies <= a.SettleAfter {
		return &VerifyResponse{PaymentRef: paymentRef, Status: StatusPending}, nil
	}

	if len(charge.phone) >= 4 && charge.phone[len(charge.phone)-4:] == "0000" {
		return &VerifyResponse{PaymentRef: paymentRef, Status: StatusFailed, Message: "wallet declined"}, nil
	}
	return &VerifyResponse{PaymentRef: paymentRef, Status: StatusSuccess}, nil
}
