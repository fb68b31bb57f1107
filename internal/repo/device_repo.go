// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// push-notification device token registry.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// UpsertDeviceToken registers token for userID. Tokens are globally unique;
// a token already registered (possibly to another account after a device
// changes hands) is reassigned rather than duplicated.
func UpsertDeviceToken(ctx context.Context, db *gorm.DB, userID, token, platform string) (*domain.DeviceToken, error) {
	now := time.Now().UTC()

	var existing domain.DeviceToken
	err := db.WithContext(ctx).Where("token = ?", token).First(&existing).Error
	switch {
	case err == nil:
		if uerr := db.WithContext(ctx).
			Model(&domain.DeviceToken{}).
			Where("id = ?", existing.ID).
			Updates(map[string]any{
				"user_id":    userID,
				"platform":   platform,
				"updated_at": now,
			}).Error; uerr != nil {
			return nil, uerr
		}
		existing.UserID = userID
		existing.Platform = platform
		existing.UpdatedAt = now
		return &existing, nil
	case err == gorm.ErrRecordNotFound:
		d := &domain.DeviceToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			Token:     token,
			Platform:  platform,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if cerr := db.WithContext(ctx).Create(d).Error; cerr != nil {
			return nil, cerr
		}
		return d, nil
	default:
		return nil, err
	}
}

// DeleteDeviceToken unregisters a token owned by userID. Removing a token
// that is absent or owned by someone else returns ErrNotFound.
func DeleteDeviceToken(ctx context.Context, db *gorm.DB, userID, token string) error {
	res := db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&domain.DeviceToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListDeviceTokens returns every registered device for a user.
func ListDeviceTokens(ctx context.Context, db *gorm.DB, userID string) ([]domain.DeviceToken, error) {
	var out []domain.DeviceToken
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
