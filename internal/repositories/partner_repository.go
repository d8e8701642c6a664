package repositories

import (
	"context"

	"tapdeal/internal/models"
	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type partnerRepository struct {
	db *gorm.DB
}

func (r *partnerRepository) Create(ctx context.Context, partner *models.Partner) error {
	return translate(r.db.WithContext(ctx).Create(partner).Error)
}

func (r *partnerRepository) GetByID(ctx context.Context, id uint) (*models.Partner, error) {
	var partner models.Partner
	if err := r.db.WithContext(ctx).First(&partner, id).Error; err != nil {
		return nil, translate(err)
	}
	return &partner, nil
}

func (r *partnerRepository) GetByOwner(ctx context.Context, userID uint) (*models.Partner, error) {
	var partner models.Partner
	if err := r.db.WithContext(ctx).Where("owner_user_id = ?", userID).First(&partner).Error; err != nil {
		return nil, translate(err)
	}
	return &partner, nil
}

func (r *partnerRepository) UpdateDiscountRate(ctx context.Context, id uint, rate decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", id).
		Update("discount_rate", rate)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementAnalytics relies on postgres evaluating every SET expression
// against the pre-update row.
func (r *partnerRepository) IncrementAnalytics(ctx context.Context, id uint, original, discount money.Amount) error {
	res := r.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_orders":         gorm.Expr("total_orders + 1"),
			"total_revenue":        gorm.Expr("total_revenue + ?", original.Int64()),
			"total_discount_given": gorm.Expr("total_discount_given + ?", discount.Int64()),
			"average_order_value": gorm.Expr(
				"(total_revenue + ? + (total_orders + 1) / 2) / (total_orders + 1)", original.Int64()),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *partnerRepository) SetAnalytics(ctx context.Context, id uint, a models.PartnerAnalytics) error {
	res := r.db.WithContext(ctx).Model(&models.Partner{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_orders":         a.TotalOrders,
			"total_revenue":        a.TotalRevenue.Int64(),
			"total_discount_given": a.TotalDiscountGiven.Int64(),
			"average_order_value":  a.AverageOrderValue.Int64(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
