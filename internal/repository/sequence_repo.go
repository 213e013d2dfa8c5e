package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// SequenceStart is the value the first caller of a fresh namespace gets
// incremented from, so the first minted value is SequenceStart+1.
const SequenceStart = 1000

type SequenceRepository interface {
	NextValue(ctx context.Context, namespace string) (int64, error)
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

// NextValue increments and returns the counter for namespace in a single
// statement. The upsert is linearized by Postgres, so concurrent callers
// always observe distinct consecutive values.
func (r *sequenceRepository) NextValue(ctx context.Context, namespace string) (int64, error) {
	var value int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO sequence_counters (namespace, value)
		VALUES (?, ?)
		ON CONFLICT (namespace)
		DO UPDATE SET value = sequence_counters.value + 1
		RETURNING value
	`, namespace, SequenceStart+1).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("next sequence value for %q: %w", namespace, err)
	}
	return value, nil
}
