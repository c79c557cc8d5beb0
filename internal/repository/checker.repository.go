package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/pkg/pg"
)

var ErrCheckerNotFound = errors.New("checker not found")

type CheckerRepository struct {
	*pg.DB
}

func NewCheckerRepository(db *pg.DB) *CheckerRepository {
	return &CheckerRepository{
		db,
	}
}

// CreateBatch inserts all checkers for one transaction atomically. The
// unique index on inventory_id guarantees the 1:1 binding with the sold
// item even under a concurrent double-issue attempt.
func (r *CheckerRepository) CreateBatch(ctx context.Context, checkers []*model.Checker) ([]*model.Checker, error) {
	entities := make([]*CheckerEntity, len(checkers))
	for i, c := range checkers {
		entities[i] = toCheckerEntity(c)
	}

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, e := range entities {
			if err := r.Write(ctx).WithContext(ctx).Create(e).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toCheckerModels(entities), nil
}

// FindByTransaction lists checkers issued for a transaction, issue order.
func (r *CheckerRepository) FindByTransaction(ctx context.Context, transactionID int64) ([]*model.Checker, error) {
	var entities []*CheckerEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCheckerModels(entities), nil
}

// FindByReference lists checkers issued under a purchase reference.
func (r *CheckerRepository) FindByReference(ctx context.Context, referenceCode string) ([]*model.Checker, error) {
	var entities []*CheckerEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("purchase_reference = ?", referenceCode).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCheckerModels(entities), nil
}

// MarkExpired sweeps active checkers past their expiry.
func (r *CheckerRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&CheckerEntity{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.CheckerStatusActive, now).
		Update("status", model.CheckerStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
