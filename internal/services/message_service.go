// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the message lifecycle: send, deliver/read transitions, edit, soft
// delete, scroll-back listing, and in-conversation search.
//
// The one hard atomicity requirement of the system lives here: a message row
// and the owning conversation's denormalized state (preview, peer unread
// counter, updated_at) are committed in a single transaction, so a rollback
// of either rolls back both.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// conversation/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/activity"
	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// previewMaxRunes caps the conversation preview text stored on the row.
const previewMaxRunes = 100

// MessageService coordinates message persistence, conversation denormalized
// state, and real-time/push fan-out.
type MessageService struct {
	DB *gorm.DB

	// Notify dispatches real-time events; optional.
	Notify Notifier
	// Push delivers out-of-band notifications; optional, failures swallowed.
	Push Pusher
	// Activity receives ledger entries; optional.
	Activity activity.Sink

	// MaxBodyRunes caps message bodies by rune length; 0 disables the cap.
	MaxBodyRunes int

	// InvalidateTranslations drops cached translations when a message is
	// edited. Off by default: stale translations are the documented legacy
	// behavior, and flipping this is a product decision, not a code one.
	InvalidateTranslations bool
}

// Send validates and persists a message from senderID to peerID, creating
// the conversation lazily. The message row, preview, and the peer's unread
// counter commit atomically; real-time and push dispatch happen after the
// commit so transient network noise never corrupts persisted state.
func (s *MessageService) Send(ctx context.Context, senderID, peerID, body, msgType string, parentID *int64) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("sender.id", senderID),
			attribute.String("peer.id", peerID),
		),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return nil, ErrBodyTooLong
	}
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !validMessageType(msgType) {
		return nil, ErrInvalidMessageType
	}
	if senderID == peerID {
		return nil, ErrSelfConversation
	}

	conv, err := repo.GetOrCreateConversation(ctx, s.DB, senderID, peerID)
	if err != nil {
		return nil, err
	}

	// Reply threading: the parent must be a live message of this thread.
	if parentID != nil {
		parent, perr := repo.GetMessage(s.DB, *parentID)
		if perr != nil || parent.ConversationID != conv.ID {
			return nil, ErrMessageNotFound
		}
	}

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, conv.ID, senderID, body, msgType, parentID)
		if err != nil {
			return err
		}
		msg = m
		if err := repo.UpdatePreview(ctx, tx, conv.ID, clipPreview(body)); err != nil {
			return err
		}
		return repo.IncrementUnread(ctx, tx, conv.ID, peerID)
	})
	if err != nil {
		return nil, err
	}

	notify(ctx, s.Notify, peerID, EventNewMessage, msg)
	if s.Push != nil {
		s.Push.PushToUser(ctx, peerID, "New message", clipPreview(body))
	}
	s.record(activity.Entry{
		Actor:      senderID,
		Action:     "message.send",
		EntityKind: "message",
		EntityID:   strconv.FormatInt(msg.ID, 10),
		Detail:     fmt.Sprintf("conversation %s", conv.ID),
	})
	return msg, nil
}

// ListPage returns paginated non-deleted messages, newest-first, for a
// conversation the user participates in.
func (s *MessageService) ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.memberConversation(ctx, userID, conversationID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// MarkDelivered records client receipt of a single message. Idempotent, and
// restricted to the recipient side: a sender cannot mark their own message.
func (s *MessageService) MarkDelivered(ctx context.Context, userID string, messageID int64) error {
	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return ErrNotParticipant
	}
	return repo.MarkDelivered(s.DB.WithContext(ctx), messageID)
}

// MarkRead records that the recipient has read a single message. One-way and
// idempotent; read implies delivered.
func (s *MessageService) MarkRead(ctx context.Context, userID string, messageID int64) error {
	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == userID {
		return ErrNotParticipant
	}
	if err := repo.MarkRead(s.DB.WithContext(ctx), messageID); err != nil {
		return err
	}
	notify(ctx, s.Notify, msg.SenderID, EventMessageRead, map[string]any{
		"message_id":      messageID,
		"conversation_id": msg.ConversationID,
	})
	return nil
}

// MarkConversationRead bulk-marks all unread messages not authored by the
// user and zeroes the user's unread counter, atomically. Used when a user
// opens a conversation. Returns the number of messages transitioned.
func (s *MessageService) MarkConversationRead(ctx context.Context, userID, conversationID string) (int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkConversationRead",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	conv, err := s.memberConversation(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var terr error
		n, terr = repo.MarkConversationRead(tx, conversationID, userID)
		if terr != nil {
			return terr
		}
		return repo.ResetUnread(ctx, tx, conversationID, userID)
	})
	if err != nil {
		return 0, err
	}

	if other := otherParticipant(conv, userID); other != "" && n > 0 {
		notify(ctx, s.Notify, other, EventMessageRead, map[string]any{
			"conversation_id": conversationID,
			"count":           n,
		})
	}
	return n, nil
}

// Edit replaces the body of a message the user sent. The edited flag and
// timestamp are raised; id and sent time are untouched and no prior text is
// kept. Cached translations are dropped when InvalidateTranslations is set.
func (s *MessageService) Edit(ctx context.Context, userID string, messageID int64, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if s.MaxBodyRunes > 0 && utf8.RuneCountInString(body) > s.MaxBodyRunes {
		return nil, ErrBodyTooLong
	}

	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotSender
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateMessageBody(tx, messageID, body); err != nil {
			return err
		}
		// Keep the preview in sync when the edited message is the latest one.
		last, lerr := repo.LastMessage(tx, msg.ConversationID)
		if lerr == nil && last.ID == messageID {
			if perr := repo.UpdatePreview(ctx, tx, msg.ConversationID, clipPreview(body)); perr != nil {
				return perr
			}
		}
		if s.InvalidateTranslations {
			return repo.DeleteTranslations(ctx, tx, messageID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	updated, err := repo.GetMessage(s.DB.WithContext(ctx), messageID)
	if err != nil {
		return nil, err
	}

	conv, cerr := repo.GetConversation(ctx, s.DB, msg.ConversationID)
	if cerr == nil {
		notify(ctx, s.Notify, otherParticipant(conv, userID), EventMessageEdited, updated)
	}
	s.record(activity.Entry{
		Actor:      userID,
		Action:     "message.edit",
		EntityKind: "message",
		EntityID:   strconv.FormatInt(messageID, 10),
	})
	return updated, nil
}

// Delete soft-deletes a message the user sent. The row persists and stays
// reachable by id; list and search queries exclude it from then on.
func (s *MessageService) Delete(ctx context.Context, userID string, messageID int64) error {
	msg, err := s.visibleMessage(ctx, userID, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.SoftDeleteMessage(tx, messageID); err != nil {
			return err
		}
		// The preview tracks the highest-id message still visible.
		last, lerr := repo.LastMessage(tx, msg.ConversationID)
		switch {
		case lerr == nil:
			return repo.UpdatePreview(ctx, tx, msg.ConversationID, clipPreview(last.Body))
		case errors.Is(lerr, gorm.ErrRecordNotFound):
			return repo.UpdatePreview(ctx, tx, msg.ConversationID, "")
		default:
			return lerr
		}
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	conv, cerr := repo.GetConversation(ctx, s.DB, msg.ConversationID)
	if cerr == nil {
		notify(ctx, s.Notify, otherParticipant(conv, userID), EventMessageDeleted, map[string]any{
			"message_id":      messageID,
			"conversation_id": msg.ConversationID,
		})
	}
	s.record(activity.Entry{
		Actor:      userID,
		Action:     "message.delete",
		EntityKind: "message",
		EntityID:   strconv.FormatInt(messageID, 10),
	})
	return nil
}

// Search returns non-deleted messages of the conversation whose body
// contains the substring, newest-first.
func (s *MessageService) Search(ctx context.Context, userID, conversationID, substring string, limit int) ([]domain.Message, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" {
		return []domain.Message{}, nil
	}
	if _, err := s.memberConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return repo.SearchMessages(s.DB.WithContext(ctx), conversationID, substring, limit)
}

// Get returns a message by id for a participant, including soft-deleted rows
// (direct lookup is exempt from the deleted filter).
func (s *MessageService) Get(ctx context.Context, userID string, messageID int64) (*domain.Message, error) {
	return s.visibleMessage(ctx, userID, messageID)
}

// memberConversation loads the conversation and enforces membership.
func (s *MessageService) memberConversation(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// visibleMessage loads a message and enforces that userID participates in
// its conversation.
func (s *MessageService) visibleMessage(ctx context.Context, userID string, messageID int64) (*domain.Message, error) {
	msg, err := repo.GetMessage(s.DB.WithContext(ctx), messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if _, err := s.memberConversation(ctx, userID, msg.ConversationID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageService) record(e activity.Entry) {
	if s.Activity != nil {
		s.Activity.Record(e)
	}
}

// otherParticipant returns the peer of userID, or "" for a non-participant.
func otherParticipant(c *domain.Conversation, userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	}
	return ""
}

// validMessageType checks the type tag against the accepted set.
func validMessageType(t string) bool {
	switch t {
	case domain.MessageTypeText, domain.MessageTypeImage, domain.MessageTypeFile, domain.MessageTypeEmoji:
		return true
	}
	return false
}

// clipPreview truncates preview text to the stored maximum rune length.
func clipPreview(body string) string {
	if utf8.RuneCountInString(body) > previewMaxRunes {
		return string([]rune(body)[:previewMaxRunes])
	}
	return body
}
