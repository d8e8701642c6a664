package repositories

import (
	"context"
	"time"

	"tapdeal/internal/models"

	"gorm.io/gorm"
)

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error)
}

func (r *orderRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, upd OrderUpdate) (bool, error) {
	values := map[string]interface{}{"status": to}
	if upd.GatewayPaymentID != "" {
		values["gateway_payment_id"] = upd.GatewayPaymentID
	}
	if upd.GatewaySignature != "" {
		values["gateway_signature"] = upd.GatewaySignature
	}
	if upd.FailureReason != "" {
		values["failure_reason"] = upd.FailureReason
	}
	if upd.CompletedAt != nil {
		values["completed_at"] = *upd.CompletedAt
	}
	if upd.RefundedAt != nil {
		values["refunded_at"] = *upd.RefundedAt
	}

	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("order_id = ? AND status IN ?", orderID, from).
		Updates(values)
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID uint, opts ListOptions) ([]models.Order, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}, opts)
}

func (r *orderRepository) ListByPartner(ctx context.Context, partnerID uint, opts ListOptions) ([]models.Order, int64, error) {
	return r.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("partner_id = ?", partnerID)
	}, opts)
}

func (r *orderRepository) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, opts ListOptions) ([]models.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var orders []models.Order
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Order("created_at DESC, id DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		Find(&orders).Error
	return orders, total, translate(err)
}

func (r *orderRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, translate(err)
}

func (r *orderRepository) ListSettledByPartner(ctx context.Context, partnerID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND status IN ?", partnerID,
			[]models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusRefunded}).
		Order("completed_at ASC").
		Find(&orders).Error
	return orders, translate(err)
}
