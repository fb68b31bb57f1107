// Package services – ConversationService
//
// This file implements the ConversationService, which manages the lifecycle
// of two-party conversation threads: lazy creation in canonical pair order,
// visibility (hide / soft delete), membership checks, and the paginated
// most-recently-active listing that the conversation screen renders.
//
// Service-level errors (e.g., ErrConversationNotFound, ErrNotParticipant)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// ConversationRepo defines the repository contract required by
// ConversationService. Implementations are responsible for persistence of
// conversation aggregates.
type ConversationRepo interface {
	// GetOrCreateConversation returns the single active conversation for an
	// unordered user pair, creating it in canonical order when absent.
	GetOrCreateConversation(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.Conversation, error)

	// GetConversation fetches an active conversation by id.
	GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)

	// CountConversations returns the total visible to the user.
	CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListConversationsPage returns a page, most-recently-active first.
	ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error)

	// HideConversation raises the per-slot hide flag for the user.
	HideConversation(ctx context.Context, db *gorm.DB, conversationID, userID string) error

	// DeleteConversation soft-deletes the row.
	DeleteConversation(ctx context.Context, db *gorm.DB, conversationID string) error
}

// ConversationService provides conversation-level operations. It enforces
// membership rules and pair canonicalization on top of the repository.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	return &ConversationService{DB: db, Repo: r}
}

// Start returns the active conversation between the current user and peer,
// creating it lazily. The pair is canonicalized so Start(a, b) and
// Start(b, a) address the same row.
func (s *ConversationService) Start(ctx context.Context, userID, peerID string) (*domain.Conversation, error) {
	if userID == peerID {
		return nil, ErrSelfConversation
	}
	return s.Repo.GetOrCreateConversation(ctx, s.DB, userID, peerID)
}

// Get fetches a conversation the user participates in.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	c, err := s.Repo.GetConversation(ctx, s.DB, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if !c.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// ListPage returns a page of the user's conversations and the total count.
// It applies defaults for invalid page/pageSize.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}

	items, err := s.Repo.ListConversationsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// OtherUser returns the peer of userID in the conversation; a non-participant
// is an invalid-argument condition reported as ErrNotParticipant.
func (s *ConversationService) OtherUser(c *domain.Conversation, userID string) (string, error) {
	switch userID {
	case c.User1ID:
		return c.User2ID, nil
	case c.User2ID:
		return c.User1ID, nil
	}
	return "", ErrNotParticipant
}

// Hide removes the conversation from the user's list without affecting the
// other participant's view.
func (s *ConversationService) Hide(ctx context.Context, userID, conversationID string) error {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.Repo.HideConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// Delete soft-deletes the conversation for both participants. The row (and
// its messages) remain physically present.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.Repo.DeleteConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}
