// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - POST   /conversations/{id}/messages         (send a message)
//   - GET    /conversations/{id}/messages         (list paginated, ETag support)
//   - GET    /conversations/{id}/messages/search  (substring search)
//   - POST   /conversations/{id}/read             (mark every inbound message read)
//   - POST   /messages/{id}/delivered             (single delivery receipt)
//   - POST   /messages/{id}/read                  (single read receipt)
//   - PUT    /messages/{id}                       (edit own message)
//   - DELETE /messages/{id}                       (soft delete own message)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, conversation, key), the handler returns that
// recorded message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"
	"github.com/agoranet/go-messenger-backend/internal/services"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
//
// Body is normalized by the handler (line endings and excessive blank lines)
// before being passed to the service layer. The service also enforces a
// maximum rune count, which can be configured in MessageService.
type SendMessageRequest struct {
	// Body is the message text. It must be non-empty.
	Body string `json:"body" binding:"required,min=1" example:"see you at the assembly tonight?"`
	// Type is one of text, image, file, emoji; defaults to text.
	Type string `json:"type" example:"text"`
	// ParentID optionally references the message being replied to.
	ParentID *int64 `json:"parent_id,omitempty" example:"42"`
}

// SendMessageResponse is the JSON envelope for a newly created message.
type SendMessageResponse struct {
	// Message is the persisted message created by the request.
	Message *domain.Message `json:"message"`
}

// EditMessageRequest is the JSON payload for editing a message body.
type EditMessageRequest struct {
	// Body is the replacement text (non-empty).
	Body string `json:"body" binding:"required,min=1" example:"see you at the assembly at 8?"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// MarkReadResponse reports how many messages a bulk read receipt affected.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

// SearchMessagesResponse contains substring search matches, newest first.
type SearchMessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeBody normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeBody(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// discoverMaxBodyRunes inspects the concrete MessageService for a configured
// body-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxBodyRunes(msgSvc MessageService) int {
	const fallback = 4000
	if ms, ok := msgSvc.(*services.MessageService); ok {
		if ms.MaxBodyRunes > 0 {
			return ms.MaxBodyRunes
		}
	}
	return fallback
}

// messageIDParam parses the numeric message id path parameter.
func messageIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a positive integer")
		return 0, false
	}
	return id, true
}

// failMessage maps message-level service errors onto the standard envelope.
func failMessage(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	case errors.Is(err, services.ErrNotParticipant):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this conversation")
	case errors.Is(err, services.ErrNotSender):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the sender may do this")
	case errors.Is(err, services.ErrEmptyBody):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
	case errors.Is(err, services.ErrBodyTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body too long")
	case errors.Is(err, services.ErrInvalidMessageType):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type must be one of: text, image, file, emoji")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Appends a message to the conversation and notifies the peer in real time.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.SendMessageResponse  "Created message"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse        "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	body := sanitizeBody(req.Body)
	maxRunes := discoverMaxBodyRunes(h.msgSvc)
	if maxRunes > 0 && utf8.RuneCountInString(body) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("body too long: max %d runes", maxRunes))
		return
	}
	if body == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	currentUser := userID(c)

	// The send is addressed to the peer of an existing conversation.
	conv, err := h.convSvc.Get(ctx, currentUser, convID)
	if err != nil {
		failConversation(c, err)
		return
	}
	peer := conv.User2ID
	if currentUser == conv.User2ID {
		peer = conv.User1ID
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := idempotencyKey(c)
	if idemKey != "" {
		if svc, okSvc := h.msgSvc.(*services.MessageService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, convID, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetMessage(svc.DB, rec.MessageID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, http.StatusCreated, SendMessageResponse{Message: prev})
					return
				}
			}
		}
	}

	// Normal processing (service has a second guard for length).
	m, err := h.msgSvc.Send(ctx, currentUser, peer, body, req.Type, req.ParentID)
	if err != nil {
		if errors.Is(err, services.ErrSelfConversation) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot message yourself")
			return
		}
		failMessage(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		if svc, ok := h.msgSvc.(*services.MessageService); ok && svc.DB != nil {
			ttl := 24 * time.Hour
			_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, convID, idemKey, m.ID, http.StatusCreated, ttl)
		}
	}

	ok(c, http.StatusCreated, SendMessageResponse{Message: m})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a paginated list of messages, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID"            example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       id             path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.msgSvc.(*services.MessageService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, convID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, convID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.msgSvc.ListPage(ctx, userID(c), convID, page, pageSize)
	if err != nil {
		failMessage(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// SearchMessages godoc
// @ID          searchMessages
// @Summary     Search messages in a conversation
// @Description Returns non-deleted messages whose body contains the query substring, newest first.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       q          query   string  true  "Substring to search for"
// @Param       limit      query   int     false "Max results"  minimum(1) maximum(100) default(50)
//
// @Success     200  {object} handlers.SearchMessagesResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/messages/search [get]
func (h *Handlers) SearchMessages(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 100 {
			limit = n
		}
	}

	items, err := h.msgSvc.Search(c.Request.Context(), userID(c), convID, q, limit)
	if err != nil {
		failMessage(c, err)
		return
	}
	ok(c, http.StatusOK, SearchMessagesResponse{Messages: items})
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark a conversation read
// @Description Marks every unread inbound message in the conversation as read and resets the caller's unread counter.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	marked, err := h.msgSvc.MarkConversationRead(c.Request.Context(), userID(c), convID)
	if err != nil {
		failMessage(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: marked})
}

// MarkMessageDelivered godoc
// @ID          markMessageDelivered
// @Summary     Record a delivery receipt
// @Description Marks a single message as delivered to the caller. Idempotent.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    int     true  "Message ID"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id}/delivered [post]
func (h *Handlers) MarkMessageDelivered(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}
	if err := h.msgSvc.MarkDelivered(c.Request.Context(), userID(c), id); err != nil {
		failMessage(c, err)
		return
	}
	noContent(c)
}

// MarkMessageRead godoc
// @ID          markMessageRead
// @Summary     Record a read receipt
// @Description Marks a single message as read by the caller. Reading implies delivery. Idempotent.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    int     true  "Message ID"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id}/read [post]
func (h *Handlers) MarkMessageRead(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}
	if err := h.msgSvc.MarkRead(c.Request.Context(), userID(c), id); err != nil {
		failMessage(c, err)
		return
	}
	noContent(c)
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message
// @Description Replaces the body of the caller's own message and flags it as edited.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    int     true  "Message ID"
// @Param       body       body    handlers.EditMessageRequest  true  "Replacement body"
//
// @Success     200  {object} handlers.SendMessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Only the sender may edit"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id} [put]
func (h *Handlers) EditMessage(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	body := sanitizeBody(req.Body)
	if body == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}

	m, err := h.msgSvc.Edit(c.Request.Context(), userID(c), id, body)
	if err != nil {
		failMessage(c, err)
		return
	}
	ok(c, http.StatusOK, SendMessageResponse{Message: m})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Description Soft-deletes the caller's own message; the row remains for thread integrity.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    int     true  "Message ID"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Only the sender may delete"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}
	if err := h.msgSvc.Delete(c.Request.Context(), userID(c), id); err != nil {
		failMessage(c, err)
		return
	}
	noContent(c)
}

// idempotencyKey extracts an idempotency key if an upstream middleware has
// already validated/stashed it. The fallback behavior reads the
// "Idempotency-Key" header directly when no dedicated middleware exists.
func idempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}
