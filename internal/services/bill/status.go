package bill

import (
	"time"

	"tapdeal/internal/models"
)

// EffectiveStatus is the status a bill has at now. An ACTIVE bill at or past
// its expiry is EXPIRED whether or not that has been persisted yet. Terminal
// statuses are returned unchanged.
func EffectiveStatus(b *models.BillRequest, now time.Time) models.BillStatus {
	if b.Status == models.BillStatusActive && !now.Before(b.ExpiresAt) {
		return models.BillStatusExpired
	}
	return b.Status
}
