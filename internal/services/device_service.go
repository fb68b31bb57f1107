// Package services – DeviceService
//
// Registration of per-device push-notification tokens. Tokens are opaque to
// the backend and globally unique; a token moving to another account is
// reassigned on re-registration.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"
)

// DeviceService manages the push-notification device registry.
type DeviceService struct {
	DB *gorm.DB
}

// Register stores (or reassigns) a device token for userID.
func (s *DeviceService) Register(ctx context.Context, userID, token, platform string) (*domain.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform != domain.PlatformIOS && platform != domain.PlatformAndroid {
		return nil, ErrInvalidPlatform
	}
	return repo.UpsertDeviceToken(ctx, s.DB, userID, token, platform)
}

// Unregister removes a token owned by userID.
func (s *DeviceService) Unregister(ctx context.Context, userID, token string) error {
	err := repo.DeleteDeviceToken(ctx, s.DB, userID, strings.TrimSpace(token))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrDeviceNotFound
	}
	return err
}

// List returns every device registered for userID.
func (s *DeviceService) List(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	return repo.ListDeviceTokens(ctx, s.DB, userID)
}
