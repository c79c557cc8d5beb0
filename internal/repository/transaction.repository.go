package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrInvalidTransition     = errors.New("invalid transaction state transition")
	ErrTransitionConflict    = errors.New("transaction was updated concurrently")
	ErrIDGenerationExhausted = errors.New("failed to generate a unique transaction id")
)

const idAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

// Create persists a new transaction in the pending state. Human-facing
// transaction and print identifiers are generated here with a collision
// retry against existing rows.
func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)
	entity.Status = string(model.TransactionStatusPending)

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		if entity.TransactionID == "" {
			id, err := r.generateUniqueID(ctx, "TXN", "transaction_id")
			if err != nil {
				return err
			}
			entity.TransactionID = id
		}
		if entity.PrintID == "" {
			id, err := r.generateUniqueID(ctx, "PRT", "print_id")
			if err != nil {
				return err
			}
			entity.PrintID = id
		}
		return r.Write(ctx).WithContext(ctx).Create(entity).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	return toTransactionModel(entity), nil
}

// generateUniqueID produces PREFIX + yymmdd + six random characters and
// retries until the value is free in the given column.
func (r *TransactionRepository) generateUniqueID(ctx context.Context, prefix, column string) (string, error) {
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		suffix := make([]byte, 6)
		for i := range suffix {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
			if err != nil {
				return "", fmt.Errorf("generate id suffix: %w", err)
			}
			suffix[i] = idAlphabet[n.Int64()]
		}
		id := prefix + time.Now().Format("060102") + string(suffix)

		var count int64
		err := r.Write(ctx).WithContext(ctx).
			Model(&TransactionEntity{}).
			Where(fmt.Sprintf("%s = ?", column), id).
			Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", ErrIDGenerationExhausted
}

// Transition moves a transaction to a new status under a row lock,
// enforcing the state machine. Completing a transaction stamps paid_at.
func (r *TransactionRepository) Transition(ctx context.Context, id int64, to model.TransactionStatus) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		var entity TransactionEntity
		err := r.Write(ctx).WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&entity).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		from := model.TransactionStatus(entity.Status)
		if from == to {
			return nil
		}
		if !model.CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}

		updates := map[string]interface{}{"status": to}
		if to == model.TransactionStatusCompleted || to == model.TransactionStatusPaidUnfulfilled {
			updates["paid_at"] = time.Now()
		}

		result := r.Write(ctx).WithContext(ctx).
			Model(&TransactionEntity{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrTransitionConflict
		}
		return nil
	})
}

// SetPaymentRef records the provider's payment reference once the adapter
// accepts the request.
func (r *TransactionRepository) SetPaymentRef(ctx context.Context, id int64, ref string) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&TransactionEntity{}).
		Where("id = ?", id).
		Update("payment_reference", ref)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Read(ctx).WithContext(ctx).Where("transaction_id = ?", transactionID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

// FindByPhone lists a buyer's most recent purchase attempts.
func (r *TransactionRepository) FindByPhone(ctx context.Context, phone string, limit int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var entities []*TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("phone_number = ?", phone).
		Order("created_at DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// FindExpired lists transactions whose payment window elapsed while they
// were still pending or processing. The sweep releases their claims and
// marks them expired.
func (r *TransactionRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var entities []*TransactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("expires_at < ? AND status IN ?", now, []string{
			string(model.TransactionStatusPending),
			string(model.TransactionStatusProcessing),
		}).
		Order("expires_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toTransactionModels(entities), nil
}

// TransactionStats is the admin revenue aggregate over a date range.
type TransactionStats struct {
	Total        int64   `json:"total_transactions"`
	Completed    int64   `json:"completed_transactions"`
	TotalRevenue float64 `json:"total_revenue"`
	CheckersSold int64   `json:"total_checkers_sold"`
}

func (r *TransactionRepository) Stats(ctx context.Context, from, to *time.Time) (*TransactionStats, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&TransactionEntity{})
	if from != nil {
		q = q.Where("created_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("created_at < ?", *to)
	}

	var stats TransactionStats
	err := q.Select(
		"COUNT(*) as total, "+
			"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) as completed, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN total_amount ELSE 0 END), 0) as total_revenue, "+
			"COALESCE(SUM(CASE WHEN status = ? THEN quantity ELSE 0 END), 0) as checkers_sold",
		model.TransactionStatusCompleted,
		model.TransactionStatusCompleted,
		model.TransactionStatusCompleted,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
