package repositories

import (
	"context"
	"time"

	"tapdeal/internal/models"

	"gorm.io/gorm"
)

type billRepository struct {
	db *gorm.DB
}

func (r *billRepository) Create(ctx context.Context, bill *models.BillRequest) error {
	return translate(r.db.WithContext(ctx).Create(bill).Error)
}

func (r *billRepository) GetByBillID(ctx context.Context, billID string) (*models.BillRequest, error) {
	var bill models.BillRequest
	if err := r.db.WithContext(ctx).Where("bill_id = ?", billID).First(&bill).Error; err != nil {
		return nil, translate(err)
	}
	return &bill, nil
}

func (r *billRepository) ListActive(ctx context.Context, partnerID uint, now time.Time) ([]models.BillRequest, error) {
	var bills []models.BillRequest
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND status = ? AND expires_at > ?", partnerID, models.BillStatusActive, now).
		Order("created_at DESC, id DESC").
		Find(&bills).Error
	return bills, translate(err)
}

func (r *billRepository) MarkUsed(ctx context.Context, billID string, userID uint, orderID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.BillRequest{}).
		Where("bill_id = ? AND status = ? AND expires_at > ?", billID, models.BillStatusActive, now).
		Updates(map[string]interface{}{
			"status":   models.BillStatusUsed,
			"used_by":  userID,
			"order_id": orderID,
			"used_at":  now,
		})
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *billRepository) Cancel(ctx context.Context, billID string, partnerID uint, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.BillRequest{}).
		Where("bill_id = ? AND partner_id = ? AND status = ? AND expires_at > ?",
			billID, partnerID, models.BillStatusActive, now).
		Update("status", models.BillStatusCancelled)
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *billRepository) MarkExpired(ctx context.Context, billID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.BillRequest{}).
		Where("bill_id = ? AND status = ? AND expires_at <= ?", billID, models.BillStatusActive, now).
		Update("status", models.BillStatusExpired)
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *billRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.BillRequest{}).
		Where("status = ? AND expires_at <= ?", models.BillStatusActive, now).
		Update("status", models.BillStatusExpired)
	return res.RowsAffected, translate(res.Error)
}

func (r *billRepository) PurgeExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.BillRequest{})
	return res.RowsAffected, translate(res.Error)
}
