// Translation HTTP handlers.
//
// This file exposes the cached per-viewer message translation endpoint:
//   - POST /messages/{id}/translations
//
// The first request for a (message, viewer, language) triple calls the
// upstream translator and caches the result; subsequent requests are served
// from the cache. Upstream failures degrade gracefully to the original body.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/services"
)

// TranslateMessageRequest is the JSON payload for requesting a translation.
type TranslateMessageRequest struct {
	// Language is a BCP 47 tag, e.g. "el" or "pt-BR".
	Language string `json:"language" binding:"required,min=2" example:"el"`
}

// TranslateMessageResponse wraps the translated text for one viewer.
type TranslateMessageResponse struct {
	Translation *domain.MessageTranslation `json:"translation"`
}

// TranslateMessage godoc
// @ID          translateMessage
// @Summary     Translate a message
// @Description Returns the message body in the requested language, cached per viewer.
// @Tags        Translations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    int     true  "Message ID"
// @Param       body       body    handlers.TranslateMessageRequest  true  "Target language"
//
// @Success     200  {object} handlers.TranslateMessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /messages/{id}/translations [post]
func (h *Handlers) TranslateMessage(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}

	var req TranslateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Language) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "language required")
		return
	}

	tr, err := h.trSvc.Translate(c.Request.Context(), userID(c), id, strings.TrimSpace(req.Language))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidLanguage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "language must be a valid BCP 47 tag")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case errors.Is(err, services.ErrNotParticipant):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this conversation")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeTranslateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, TranslateMessageResponse{Translation: tr})
}
