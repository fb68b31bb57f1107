// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the activity
// ledger written by the background recorder.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// CreateActivityRecord appends one ledger row.
func CreateActivityRecord(ctx context.Context, db *gorm.DB, rec *domain.ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(rec).Error
}

// ListActivityByActor returns the most recent ledger rows for an actor.
func ListActivityByActor(ctx context.Context, db *gorm.DB, actor string, limit int) ([]domain.ActivityRecord, error) {
	var out []domain.ActivityRecord
	q := db.WithContext(ctx).
		Where("actor = ?", actor).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
