package repositories

import (
	"context"
	"time"

	"tapdeal/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type webhookEventRepository struct {
	db *gorm.DB
}

func (r *webhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	return res.RowsAffected == 1, translate(res.Error)
}

func (r *webhookEventRepository) Get(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		First(&event).Error
	if err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uint, processedAt *time.Time, processingError string) error {
	return translate(r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     processedAt,
			"processing_error": processingError,
		}).Error)
}
