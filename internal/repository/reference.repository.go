package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrReferenceNotFound = errors.New("purchase reference not found")
	ErrDuplicateCode     = errors.New("reference code already exists")
)

type ReferenceRepository struct {
	*pg.DB
}

func NewReferenceRepository(db *pg.DB) *ReferenceRepository {
	return &ReferenceRepository{
		db,
	}
}

func (r *ReferenceRepository) Create(ctx context.Context, ref *model.PurchaseReference) (*model.PurchaseReference, error) {
	entity := toReferenceEntity(ref)
	entity.Status = string(model.ReferenceStatusActive)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toReferenceModel(entity), nil
}

// Exists reports whether a code is already taken, regardless of status.
func (r *ReferenceRepository) Exists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&ReferenceEntity{}).
		Where("reference_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActiveByCodeAndPhone is the sole retrieval path. Both the code and the
// owning phone must match exactly; a code alone never resolves, so a guessed
// code leaks nothing about its true owner.
func (r *ReferenceRepository) FindActiveByCodeAndPhone(ctx context.Context, code, phone string, now time.Time) (*model.PurchaseReference, error) {
	var entity ReferenceEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("reference_code = ? AND phone_number = ? AND status = ? AND expires_at > ?",
			code, phone, model.ReferenceStatusActive, now).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferenceNotFound
		}
		return nil, err
	}
	return toReferenceModel(&entity), nil
}

// FindByPhone lists a buyer's references, newest first.
func (r *ReferenceRepository) FindByPhone(ctx context.Context, phone string, limit int) ([]*model.PurchaseReference, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var entities []*ReferenceEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("phone_number = ?", phone).
		Order("created_at DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	models := make([]*model.PurchaseReference, len(entities))
	for i, e := range entities {
		models[i] = toReferenceModel(e)
	}
	return models, nil
}

func (r *ReferenceRepository) MarkUsed(ctx context.Context, code string) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ReferenceEntity{}).
		Where("reference_code = ? AND status = ?", code, model.ReferenceStatusActive).
		Update("status", model.ReferenceStatusUsed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReferenceNotFound
	}
	return nil
}

// MarkExpired sweeps active references past their retention window.
func (r *ReferenceRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&ReferenceEntity{}).
		Where("status = ? AND expires_at < ?", model.ReferenceStatusActive, now).
		Update("status", model.ReferenceStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
