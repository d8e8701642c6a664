package repositories

import (
	"context"

	"tapdeal/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reconciliationRepository struct {
	db *gorm.DB
}

func (r *reconciliationRepository) Record(ctx context.Context, issue *models.ReconciliationIssue) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(issue)
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *reconciliationRepository) ListOpen(ctx context.Context, limit int) ([]models.ReconciliationIssue, error) {
	var issues []models.ReconciliationIssue
	err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at DESC").
		Limit(limit).
		Find(&issues).Error
	return issues, translate(err)
}
