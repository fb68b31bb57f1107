// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for call records.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// CreateCallRecord writes the single summary row for a resolved call attempt.
// The terminal status and optional duration are supplied by the service; no
// update path exists afterwards.
func CreateCallRecord(ctx context.Context, db *gorm.DB, rec *domain.CallRecord) (*domain.CallRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// CountCallRecords returns the total call attempts logged for a conversation.
func CountCallRecords(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// ListCallRecordsPage returns a page of call records, newest attempts first.
func ListCallRecordsPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.CallRecord, error) {
	var out []domain.CallRecord
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
