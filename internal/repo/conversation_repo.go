// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Concurrency note: the unread counters are the one piece of state with
// concurrent-writer contention (both participants can send at once). All
// counter mutations are expressed as targeted SQL-side increments, never as
// read-modify-write in application memory, so concurrent sends cannot lose
// updates.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetOrCreateConversation returns the single active conversation between two
// users, creating one in canonical order if absent. When the pair's row was
// previously soft-deleted it is revived in place (counters and preview
// cleared) so the unique pair index keeps holding exactly one row per pair.
func GetOrCreateConversation(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.Conversation, error) {
	u1, u2 := domain.CanonicalPair(userA, userB)

	var c domain.Conversation
	err := db.WithContext(ctx).Unscoped().
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		First(&c).Error
	switch {
	case err == nil:
		if !c.DeletedAt.Valid {
			return &c, nil
		}
		// Revive the soft-deleted row for a fresh thread.
		res := db.WithContext(ctx).Unscoped().
			Model(&domain.Conversation{}).
			Where("id = ?", c.ID).
			Updates(map[string]any{
				"deleted_at":   nil,
				"user1_unread": 0,
				"user2_unread": 0,
				"last_message": "",
				"user1_hidden": false,
				"user2_hidden": false,
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		return GetConversation(ctx, db, c.ID)
	case err == gorm.ErrRecordNotFound:
		c = domain.Conversation{
			ID:        uuid.NewString(),
			User1ID:   u1,
			User2ID:   u2,
			CreatedAt: time.Now().UTC(),
		}
		if err := db.WithContext(ctx).Create(&c).Error; err != nil {
			// Lost a first-contact race on the pair index; the winner's
			// row exists now, so take it.
			if isUniqueViolation(err) {
				return GetOrCreateConversation(ctx, db, userA, userB)
			}
			return nil, err
		}
		return &c, nil
	default:
		return nil, err
	}
}

// GetConversation fetches a single active conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CountConversations returns the number of active conversations visible to
// userID (rows the user participates in and has not hidden).
func CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("(user1_id = ? AND user1_hidden = ?) OR (user2_id = ? AND user2_hidden = ?)",
			userID, false, userID, false).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns a page of conversations visible to userID,
// most-recently-active first (updated_at desc). Use CountConversations for
// pagination metadata.
func ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Where("(user1_id = ? AND user1_hidden = ?) OR (user2_id = ? AND user2_hidden = ?)",
			userID, false, userID, false).
		Order("updated_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IncrementUnread bumps the unread counter of the slot userID occupies, as a
// single conditional UPDATE. A non-participant id affects zero rows and is a
// silent no-op; callers pre-validate membership.
func IncrementUnread(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user1_id = ?", conversationID, userID).
		Updates(map[string]any{
			"user1_unread": gorm.Expr("user1_unread + 1"),
			"updated_at":   now,
		}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user2_id = ?", conversationID, userID).
		Updates(map[string]any{
			"user2_unread": gorm.Expr("user2_unread + 1"),
			"updated_at":   now,
		}).Error
}

// ResetUnread zeroes the unread counter of the slot userID occupies. Like
// IncrementUnread, a non-participant id is a silent no-op.
func ResetUnread(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user1_id = ?", conversationID, userID).
		Updates(map[string]any{"user1_unread": 0, "updated_at": now}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user2_id = ?", conversationID, userID).
		Updates(map[string]any{"user2_unread": 0, "updated_at": now}).Error
}

// UpdatePreview sets the last-message preview text and refreshes updated_at,
// which drives conversation-list ordering. Returns ErrNotFound when the
// conversation does not exist.
func UpdatePreview(ctx context.Context, db *gorm.DB, conversationID, preview string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]any{
			"last_message": preview,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HideConversation sets the hide flag of the slot userID occupies. Returns
// ErrNotFound when the user is not a participant of an active conversation.
func HideConversation(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user1_id = ?", conversationID, userID).
		Update("user1_hidden", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	res = db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND user2_id = ?", conversationID, userID).
		Update("user2_hidden", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteConversation soft-deletes the conversation row; the row is retained
// and the pair can later be revived by GetOrCreateConversation.
func DeleteConversation(ctx context.Context, db *gorm.DB, conversationID string) error {
	res := db.WithContext(ctx).
		Where("id = ?", conversationID).
		Delete(&domain.Conversation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
