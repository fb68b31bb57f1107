// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model.
//
// Messages are ordered by id: the autoincrement primary key is the
// authoritative in-conversation ordering, so listing is `id desc`
// (newest-first, for scroll-back pagination) regardless of timestamps.
// Soft-deleted messages are filtered from list/search/count queries but stay
// reachable through GetMessage.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// CreateMessage inserts a new message row with a fresh sent timestamp.
func CreateMessage(db *gorm.DB, conversationID, senderID, body, msgType string, parentID *int64) (*domain.Message, error) {
	m := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		Type:           msgType,
		ParentID:       parentID,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// GetMessage fetches a message by id, including soft-deleted rows (direct
// lookup is the one query that may observe a deleted message).
func GetMessage(db *gorm.DB, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of non-deleted messages in a conversation.
// A raw COUNT is used so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND deleted = ?",
		conversationID, false).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a page of non-deleted messages, newest-first.
func ListMessagesPage(db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// LastMessage returns the highest-id non-deleted message of a conversation,
// or ErrNotFound when the conversation has none left.
func LastMessage(db *gorm.DB, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := db.
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkDelivered flips the delivered flag once; already-delivered rows are
// untouched, which keeps the transition idempotent and the timestamp stable.
func MarkDelivered(db *gorm.DB, id int64) error {
	return db.Model(&domain.Message{}).
		Where("id = ? AND delivered = ?", id, false).
		Updates(map[string]any{
			"delivered":    true,
			"delivered_at": time.Now().UTC(),
		}).Error
}

// MarkRead flips the read flag once. Reading implies delivery, so the
// delivered flag is raised together with read when it was still unset.
func MarkRead(db *gorm.DB, id int64) error {
	now := time.Now().UTC()
	if err := db.Model(&domain.Message{}).
		Where("id = ? AND delivered = ?", id, false).
		Updates(map[string]any{"delivered": true, "delivered_at": now}).Error; err != nil {
		return err
	}
	return db.Model(&domain.Message{}).
		Where("id = ? AND read = ?", id, false).
		Updates(map[string]any{"read": true, "read_at": now}).Error
}

// MarkConversationRead bulk-marks every unread message in the conversation
// that was NOT sent by readerID. This is the read-receipt contract: a user
// can only mark the other participant's messages as read, never their own.
// It returns the number of rows updated.
func MarkConversationRead(db *gorm.DB, conversationID, readerID string) (int64, error) {
	now := time.Now().UTC()
	res := db.Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read = ? AND deleted = ?",
			conversationID, readerID, false, false).
		Updates(map[string]any{
			"read":         true,
			"read_at":      now,
			"delivered":    true,
			"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
		})
	return res.RowsAffected, res.Error
}

// UpdateMessageBody replaces the body and raises the one-way edited flag.
// The sent timestamp and id never change; no prior text is retained.
func UpdateMessageBody(db *gorm.DB, id int64, body string) error {
	res := db.Model(&domain.Message{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{
			"body":      body,
			"edited":    true,
			"edited_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDeleteMessage raises the one-way deleted flag; the row is preserved.
func SoftDeleteMessage(db *gorm.DB, id int64) error {
	res := db.Model(&domain.Message{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]any{
			"deleted":    true,
			"deleted_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchMessages returns non-deleted messages in the conversation whose body
// contains the substring, newest-first.
func SearchMessages(db *gorm.DB, conversationID, substring string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.
		Where("conversation_id = ? AND deleted = ? AND body LIKE ? ESCAPE '\\'",
			conversationID, false, "%"+escapeLike(substring)+"%").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MessagesStats returns the non-deleted message count and the latest sent
// timestamp for a conversation; both feed the ETag on message listings.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (int64, *time.Time, error) {
	var row struct {
		Cnt int64
		Max *time.Time
	}
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) AS cnt, MAX(created_at) AS max FROM messages WHERE conversation_id = ? AND deleted = ?",
			conversationID, false).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return row.Cnt, row.Max, nil
}

// escapeLike neutralizes LIKE wildcards in user-supplied search input.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
