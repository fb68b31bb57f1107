// Package services – CallService
//
// This file implements call resolution and history. Signaling frames travel
// through the real-time transport and are never persisted; this service is
// the single persistence point, writing exactly one summary row per call
// attempt at resolution time. Keeping the signaling layer and the ledger
// decoupled means duplicate or retried signals cannot corrupt history.
package services

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/activity"
	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"
)

// CallService resolves call attempts into history rows and issues session
// tokens for the audio/video channel.
type CallService struct {
	DB *gorm.DB

	// Conversations enforces membership on the addressed thread.
	Conversations *ConversationService

	// Activity receives ledger entries; optional.
	Activity activity.Sink

	// TokenSecret signs call session tokens.
	TokenSecret []byte
	// TokenTTL bounds session token validity; values <= 0 default to 1h.
	TokenTTL time.Duration
}

// CallResolution describes the terminal state of one call attempt.
type CallResolution struct {
	ConversationID string
	CallerID       string
	CalleeID       string
	Status         string
	Video          bool
	StartedAt      time.Time
	EndedAt        *time.Time
}

// Resolve writes the single history row for a finished call attempt.
// Duration is computed as endedAt - startedAt for accepted calls only; every
// other status leaves it unset.
func (s *CallService) Resolve(ctx context.Context, actorID string, res CallResolution) (*domain.CallRecord, error) {
	switch res.Status {
	case domain.CallStatusAccepted, domain.CallStatusRejected,
		domain.CallStatusMissed, domain.CallStatusCancelled:
	default:
		return nil, ErrInvalidCallStatus
	}

	conv, err := s.Conversations.Get(ctx, actorID, res.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(res.CallerID) || !conv.IsParticipant(res.CalleeID) {
		return nil, ErrNotParticipant
	}

	rec := &domain.CallRecord{
		ConversationID: res.ConversationID,
		CallerID:       res.CallerID,
		CalleeID:       res.CalleeID,
		Status:         res.Status,
		Video:          res.Video,
		StartedAt:      res.StartedAt,
		EndedAt:        res.EndedAt,
	}
	if res.Status == domain.CallStatusAccepted && res.EndedAt != nil {
		d := int64(res.EndedAt.Sub(res.StartedAt).Seconds())
		rec.DurationSec = &d
	}

	created, err := repo.CreateCallRecord(ctx, s.DB, rec)
	if err != nil {
		return nil, err
	}
	if s.Activity != nil {
		s.Activity.Record(activity.Entry{
			Actor:      actorID,
			Action:     "call.resolve",
			EntityKind: "call",
			EntityID:   created.ID,
			Detail:     res.Status,
		})
	}
	return created, nil
}

// HistoryPage returns a page of call records for a conversation the user
// participates in, newest attempts first, plus the total count.
func (s *CallService) HistoryPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.CallRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if _, err := s.Conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountCallRecords(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.CallRecord{}, 0, nil
	}

	items, err := repo.ListCallRecordsPage(ctx, s.DB, conversationID, offset, pageSize)
	return items, total, err
}

// IssueToken mints a signed, short-lived token granting userID access to the
// conversation's audio/video session. Membership is checked first.
func (s *CallService) IssueToken(ctx context.Context, userID, conversationID string) (string, error) {
	if _, err := s.Conversations.Get(ctx, userID, conversationID); err != nil {
		return "", err
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  userID,
		"conv": conversationID,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.TokenSecret)
}
