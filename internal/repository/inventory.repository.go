package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lamstech/quickcards/internal/model"
	"github.com/lamstech/quickcards/pkg/pg"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemNotFound      = errors.New("inventory item not found")
	ErrClaimMismatch     = errors.New("items are not claimed under this token")
	ErrDuplicateSerial   = errors.New("serial number already exists")
)

// InsufficientStockError reports how much stock was actually available when
// a claim could not be fulfilled. No partial claim is ever made.
type InsufficientStockError struct {
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %d, only %d available", e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type InventoryRepository struct {
	*pg.DB
}

func NewInventoryRepository(db *pg.DB) *InventoryRepository {
	return &InventoryRepository{
		db,
	}
}

// Claim atomically moves the oldest `quantity` available items for a service
// (optionally narrowed to one exam type) into the claimed state, stamping
// them with the caller's claim token. The row lock plus the conditional
// update make the claim all-or-nothing: two concurrent buyers can never hold
// the same item, and a short pool fails the whole claim with the available
// count instead of returning a partial set.
func (r *InventoryRepository) Claim(ctx context.Context, serviceID, examTypeID string, quantity int, token string) ([]*model.InventoryItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("claim quantity must be positive, got %d", quantity)
	}
	if token == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	var claimed []*InventoryEntity
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		q := r.Write(ctx).WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("service_id = ? AND status = ?", serviceID, model.InventoryStatusAvailable)
		if examTypeID != "" {
			q = q.Where("exam_type_id = ?", examTypeID)
		}

		var candidates []*InventoryEntity
		if err := q.Order("created_at ASC, id ASC").Limit(quantity).Find(&candidates).Error; err != nil {
			return fmt.Errorf("select claim candidates: %w", err)
		}

		if len(candidates) < quantity {
			return &InsufficientStockError{Requested: quantity, Available: len(candidates)}
		}

		ids := make([]int64, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}

		now := time.Now()
		result := r.Write(ctx).WithContext(ctx).
			Model(&InventoryEntity{}).
			Where("id IN ? AND status = ?", ids, model.InventoryStatusAvailable).
			Updates(map[string]interface{}{
				"status":      model.InventoryStatusClaimed,
				"claim_token": token,
				"claimed_at":  now,
			})
		if result.Error != nil {
			return fmt.Errorf("mark items claimed: %w", result.Error)
		}
		if result.RowsAffected != int64(quantity) {
			// A competing claim won the race for some of the locked rows.
			// Roll everything back rather than hand out a short set.
			return &InsufficientStockError{Requested: quantity, Available: int(result.RowsAffected)}
		}

		for _, c := range candidates {
			c.Status = string(model.InventoryStatusClaimed)
			c.ClaimToken = token
			c.ClaimedAt = &now
		}
		claimed = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toInventoryModels(claimed), nil
}

// CommitSale finalizes a claim: claimed -> sold with the buyer phone,
// reference code and sale timestamp stamped. It only touches rows claimed
// under the given token.
func (r *InventoryRepository) CommitSale(ctx context.Context, token, phone, referenceCode string) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Where("claim_token = ? AND status = ?", token, model.InventoryStatusClaimed).
		Updates(map[string]interface{}{
			"status":             model.InventoryStatusSold,
			"sold_at":            time.Now(),
			"sold_to_phone":      phone,
			"purchase_reference": referenceCode,
		})
	if result.Error != nil {
		return fmt.Errorf("commit sale: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClaimMismatch
	}
	return nil
}

// Release returns claimed items to the pool. Releasing items that are no
// longer claimed is a no-op success, so failure paths can release
// unconditionally.
func (r *InventoryRepository) Release(ctx context.Context, token string) error {
	err := r.Write(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Where("claim_token = ? AND status = ?", token, model.InventoryStatusClaimed).
		Updates(map[string]interface{}{
			"status":      model.InventoryStatusAvailable,
			"claim_token": "",
			"claimed_at":  nil,
		}).Error
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// ReleaseStale returns to the pool any items that have sat in the claimed
// state since before the cutoff. It is the safety net for claims orphaned by
// a crash between claiming and creating the transaction record.
func (r *InventoryRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Where("status = ? AND claimed_at < ?", model.InventoryStatusClaimed, cutoff).
		Updates(map[string]interface{}{
			"status":      model.InventoryStatusAvailable,
			"claim_token": "",
			"claimed_at":  nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("release stale claims: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountAvailable returns the current size of the sellable pool.
func (r *InventoryRepository) CountAvailable(ctx context.Context, serviceID, examTypeID string) (int64, error) {
	q := r.Read(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Where("service_id = ? AND status = ?", serviceID, model.InventoryStatusAvailable)
	if examTypeID != "" {
		q = q.Where("exam_type_id = ?", examTypeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindByReference lists items sold under a purchase reference, oldest sale first.
func (r *InventoryRepository) FindByReference(ctx context.Context, referenceCode string) ([]*model.InventoryItem, error) {
	var entities []*InventoryEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("purchase_reference = ? AND status = ?", referenceCode, model.InventoryStatusSold).
		Order("sold_at ASC, id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toInventoryModels(entities), nil
}

// MarkExpired sweeps available items whose expiry has passed.
func (r *InventoryRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.Write(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.InventoryStatusAvailable, now).
		Update("status", model.InventoryStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// UpdateStatus is the administrative transition (e.g. flagging damaged stock).
func (r *InventoryRepository) UpdateStatus(ctx context.Context, id int64, status model.InventoryStatus, notes string) error {
	updates := map[string]interface{}{"status": status}
	if notes != "" {
		updates["notes"] = notes
	}
	result := r.Write(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ImportBatch inserts a batch of pre-parsed stock rows. Rows with a missing
// or duplicate serial are skipped and reported; the remainder commits as one
// transaction.
func (r *InventoryRepository) ImportBatch(ctx context.Context, serviceID, examTypeID, batchID string, rows []model.InventoryImportRow, defaultExpiry time.Time) (*model.InventoryImportResult, error) {
	result := &model.InventoryImportResult{BatchID: batchID}

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		for i, row := range rows {
			if row.SerialNumber == "" || row.PinCode == "" {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing serial number or PIN code", i+1))
				continue
			}

			var count int64
			if err := r.Write(ctx).WithContext(ctx).
				Model(&InventoryEntity{}).
				Where("serial_number = ?", row.SerialNumber).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check duplicate serial: %w", err)
			}
			if count > 0 {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %s", i+1, ErrDuplicateSerial))
				continue
			}

			expires := row.ExpiresAt
			if expires == nil {
				e := defaultExpiry
				expires = &e
			}
			entity := &InventoryEntity{
				ServiceID:    serviceID,
				ExamTypeID:   examTypeID,
				SerialNumber: row.SerialNumber,
				PinCode:      row.PinCode,
				VoucherCode:  row.VoucherCode,
				BatchID:      batchID,
				Status:       string(model.InventoryStatusAvailable),
				ExpiresAt:    expires,
			}
			if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
				continue
			}
			result.Successful++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Stats computes the per-status breakdown, optionally scoped to one service.
func (r *InventoryRepository) Stats(ctx context.Context, serviceID string) (*model.InventoryStats, error) {
	type row struct {
		Status string
		Count  int64
	}
	q := r.Read(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Select("status, COUNT(*) as count").
		Group("status")
	if serviceID != "" {
		q = q.Where("service_id = ?", serviceID)
	}
	var rows []row
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	stats := &model.InventoryStats{}
	for _, rw := range rows {
		stats.Total += rw.Count
		switch model.InventoryStatus(rw.Status) {
		case model.InventoryStatusAvailable:
			stats.Available = rw.Count
		case model.InventoryStatusClaimed:
			stats.Claimed = rw.Count
		case model.InventoryStatusSold:
			stats.Sold = rw.Count
		case model.InventoryStatusExpired:
			stats.Expired = rw.Count
		case model.InventoryStatusDamaged:
			stats.Damaged = rw.Count
		}
	}
	return stats, nil
}

// LowStock lists services whose available pool is at or under the threshold.
func (r *InventoryRepository) LowStock(ctx context.Context, threshold int64) ([]*model.LowStockAlert, error) {
	var alerts []*model.LowStockAlert
	err := r.Read(ctx).WithContext(ctx).
		Model(&InventoryEntity{}).
		Select("service_id, COUNT(*) as available_count").
		Where("status = ?", model.InventoryStatusAvailable).
		Group("service_id").
		Having("COUNT(*) <= ?", threshold).
		Order("available_count ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
