// Package services – TranslationService
//
// This file implements the per-message translation cache. The first request
// for a (message, user, language) triple calls the upstream translator and
// stores the result once; every later request is served from the cache
// without an upstream call. Upstream failure degrades gracefully: the
// original text is returned unchanged and nothing is cached, so the next
// request retries.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
)

// Translator is the upstream text-translation collaborator.
type Translator interface {
	// Translate renders text into the target language. The returned error
	// marks an upstream failure; callers fall back to the original text.
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// TranslationService serves cached message translations.
type TranslationService struct {
	DB *gorm.DB
	// Translator performs uncached translations; required.
	Translator Translator
	// Messages resolves message visibility for the requesting user.
	Messages *MessageService
}

// Translate returns the message body in the target language for userID.
// The language must be a well-formed BCP 47 tag; it is stored canonicalized.
func (s *TranslationService) Translate(ctx context.Context, userID string, messageID int64, targetLanguage string) (*domain.MessageTranslation, error) {
	tr := otel.Tracer("services/TranslationService")
	ctx, span := tr.Start(ctx, "Translate",
		trace.WithAttributes(
			attribute.Int64("message.id", messageID),
			attribute.String("language", targetLanguage),
		),
	)
	defer span.End()

	tag, err := language.Parse(strings.TrimSpace(targetLanguage))
	if err != nil {
		return nil, ErrInvalidLanguage
	}
	lang := tag.String()

	msg, err := s.Messages.Get(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	if cached, err := repo.GetTranslation(ctx, s.DB, messageID, userID, lang); err == nil {
		return cached, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	text, terr := s.Translator.Translate(ctx, msg.Body, lang)
	if terr != nil {
		// Degrade: hand back the original body, uncached, so a later
		// request can retry against a recovered upstream.
		return &domain.MessageTranslation{
			MessageID: messageID,
			UserID:    userID,
			Language:  lang,
			Text:      msg.Body,
		}, nil
	}

	created, cerr := repo.CreateTranslation(ctx, s.DB, messageID, userID, lang, text)
	if cerr != nil {
		if errors.Is(cerr, repo.ErrDuplicate) {
			// Lost a race with a concurrent first request; serve theirs.
			return repo.GetTranslation(ctx, s.DB, messageID, userID, lang)
		}
		return nil, cerr
	}
	return created, nil
}
