package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type sequenceRepository struct {
	db *gorm.DB
}

// Next is a single upsert so concurrent callers never observe the same value.
func (r *sequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, name).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}
