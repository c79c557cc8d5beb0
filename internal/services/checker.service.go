package services

import (
	"context"
	"fmt"

	"github.com/lamstech/quickcards/internal/model"
)

// PartialIssueError reports that a paid transaction did not get its full
// set of checkers. The transaction must be parked for reconciliation, not
// reported as completed.
type PartialIssueError struct {
	TransactionID int64
	Wanted        int
	Issued        int
	Cause         error
}

func (e *PartialIssueError) Error() string {
	return fmt.Sprintf("issued %d of %d checkers for transaction %d: %v", e.Issued, e.Wanted, e.TransactionID, e.Cause)
}

func (e *PartialIssueError) Unwrap() error {
	return e.Cause
}

type IssuedCheckerRepository interface {
	CreateBatch(ctx context.Context, checkers []*model.Checker) ([]*model.Checker, error)
	FindByTransaction(ctx context.Context, transactionID int64) ([]*model.Checker, error)
}

// CheckerService turns sold inventory items into issued checkers.
type CheckerService struct {
	repo IssuedCheckerRepository
}

func NewCheckerService(repo IssuedCheckerRepository) *CheckerService {
	return &CheckerService{repo: repo}
}

// Issue creates one checker per sold item, bound to the transaction and its
// reference code. It is idempotent: if the transaction already has a full
// set the existing checkers are returned, so a crashed purchase can be
// replayed safely. An existing short set means a previous issue attempt
// died half-way and needs reconciliation.
func (s *CheckerService) Issue(ctx context.Context, txn *model.Transaction, referenceCode string, items []*model.InventoryItem) ([]*model.Checker, error) {
	existing, err := s.repo.FindByTransaction(ctx, txn.ID)
	if err != nil {
		return nil, fmt.Errorf("find issued checkers: %w", err)
	}
	if len(existing) >= len(items) {
		return existing, nil
	}
	if len(existing) > 0 {
		return existing, &PartialIssueError{
			TransactionID: txn.ID,
			Wanted:        len(items),
			Issued:        len(existing),
			Cause:         fmt.Errorf("previous issue attempt left a short set"),
		}
	}

	checkers := make([]*model.Checker, len(items))
	for i, item := range items {
		checkers[i] = &model.Checker{
			Code:          fmt.Sprintf("CHK%s%03d", referenceCode, i+1),
			InventoryID:   item.ID,
			TransactionID: txn.ID,
			ReferenceCode: referenceCode,
			SerialNumber:  item.SerialNumber,
			PinCode:       item.PinCode,
			VoucherCode:   item.VoucherCode,
			Status:        model.CheckerStatusActive,
			ExpiresAt:     item.ExpiresAt,
		}
	}

	created, err := s.repo.CreateBatch(ctx, checkers)
	if err != nil {
		return nil, &PartialIssueError{
			TransactionID: txn.ID,
			Wanted:        len(items),
			Issued:        0,
			Cause:         err,
		}
	}
	return created, nil
}
