package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores gateway webhook payloads with deduplication metadata.
type WebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"size:20;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"size:191;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2" json:"providerEventId"`
	EventType       string         `gorm:"size:100;not null;index" json:"eventType"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	ProcessedAt     *time.Time     `json:"processedAt,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processingError,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}
