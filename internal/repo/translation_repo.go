// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the cached
// per-message, per-user, per-language translations.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// GetTranslation returns the cached entry for (message, user, language), or
// ErrNotFound.
func GetTranslation(ctx context.Context, db *gorm.DB, messageID int64, userID, language string) (*domain.MessageTranslation, error) {
	var t domain.MessageTranslation
	err := db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND language = ?", messageID, userID, language).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTranslation stores a translation once. A concurrent first request can
// race on the unique triple; the loser gets ErrDuplicate and should re-read.
func CreateTranslation(ctx context.Context, db *gorm.DB, messageID int64, userID, language, text string) (*domain.MessageTranslation, error) {
	t := &domain.MessageTranslation{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Language:  language,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// DeleteTranslations drops every cached translation of a message. Used only
// when invalidation-on-edit is enabled in configuration.
func DeleteTranslations(ctx context.Context, db *gorm.DB, messageID int64) error {
	return db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&domain.MessageTranslation{}).Error
}
