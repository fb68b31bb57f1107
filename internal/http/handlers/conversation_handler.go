// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST   /conversations            (start or resume a thread with a peer)
//   - GET    /conversations            (list, paginated, most recent first)
//   - GET    /conversations/{id}       (fetch one thread)
//   - POST   /conversations/{id}/hide  (remove from own list)
//   - DELETE /conversations/{id}       (soft delete for both participants)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/services"
	"github.com/agoranet/go-messenger-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines conversation lifecycle operations consumed by
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// Start returns the thread between the current user and peer, creating it
	// lazily.
	Start(ctx context.Context, userID, peerID string) (*domain.Conversation, error)
	// Get fetches a thread the user participates in.
	Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	// ListPage returns a page of the user's threads and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// Hide removes the thread from the user's own list.
	Hide(ctx context.Context, userID, conversationID string) error
	// Delete soft-deletes the thread for both participants.
	Delete(ctx context.Context, userID, conversationID string) error
}

// MessageService defines message operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageService interface {
	// Send appends a message addressed to peerID, creating the thread if needed.
	Send(ctx context.Context, senderID, peerID, body, msgType string, parentID *int64) (*domain.Message, error)
	// ListPage returns a page of messages within a thread, newest first.
	ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	// MarkDelivered flags a single message as delivered to its recipient.
	MarkDelivered(ctx context.Context, userID string, messageID int64) error
	// MarkRead flags a single message as read by its recipient.
	MarkRead(ctx context.Context, userID string, messageID int64) error
	// MarkConversationRead marks every unread inbound message in the thread
	// and returns how many rows changed.
	MarkConversationRead(ctx context.Context, userID, conversationID string) (int64, error)
	// Edit replaces the body of the caller's own message.
	Edit(ctx context.Context, userID string, messageID int64, body string) (*domain.Message, error)
	// Delete soft-deletes the caller's own message.
	Delete(ctx context.Context, userID string, messageID int64) error
	// Search returns non-deleted messages whose body contains the substring.
	Search(ctx context.Context, userID, conversationID, substring string, limit int) ([]domain.Message, error)
}

// TranslationService defines cached message translation.
type TranslationService interface {
	// Translate returns the message body in the target language, cached per
	// (message, user, language).
	Translate(ctx context.Context, userID string, messageID int64, targetLanguage string) (*domain.MessageTranslation, error)
}

// CallHistoryService defines call summary retrieval and session token issuance.
type CallHistoryService interface {
	// HistoryPage returns a page of finished call summaries for a thread.
	HistoryPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.CallRecord, int64, error)
	// IssueToken mints a short-lived call session token for the thread.
	IssueToken(ctx context.Context, userID, conversationID string) (string, error)
}

// DeviceService defines push token registration operations.
type DeviceService interface {
	// Register stores or reassigns a device push token for the user.
	Register(ctx context.Context, userID, token, platform string) (*domain.DeviceToken, error)
	// Unregister removes the user's token.
	Unregister(ctx context.Context, userID, token string) error
	// List returns all tokens registered by the user.
	List(ctx context.Context, userID string) ([]domain.DeviceToken, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for conversations, messages, translations,
// calls, and devices. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	convSvc   ConversationService
	msgSvc    MessageService
	trSvc     TranslationService
	callSvc   CallHistoryService
	deviceSvc DeviceService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(convSvc ConversationService, msgSvc MessageService, trSvc TranslationService, callSvc CallHistoryService, deviceSvc DeviceService) *Handlers {
	return &Handlers{
		convSvc:   convSvc,
		msgSvc:    msgSvc,
		trSvc:     trSvc,
		callSvc:   callSvc,
		deviceSvc: deviceSvc,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// StartConversationRequest is the JSON payload for starting a conversation.
type StartConversationRequest struct {
	// PeerID identifies the other participant.
	PeerID string `json:"peer_id" binding:"required,min=1" example:"9c1f1a0e-8f14-4f1e-9f7e-2a86d1c2b110"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ConversationView is a conversation as rendered for one participant. It
// projects the per-slot unread counter onto a single field.
type ConversationView struct {
	domain.Conversation
	// Unread is the caller's own unread counter.
	Unread int `json:"unread"`
	// PeerID is the other participant.
	PeerID string `json:"peer_id"`
}

// ListConversationsResponse wraps a page of conversations and pagination
// information.
type ListConversationsResponse struct {
	Conversations []ConversationView `json:"conversations"`
	Pagination    Pagination         `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	return utils.ClampPage(page, pageSize, maxPageSize)
}

// conversationView projects a conversation for the calling participant.
func conversationView(cv domain.Conversation, uid string) ConversationView {
	peer := cv.User2ID
	if uid == cv.User2ID {
		peer = cv.User1ID
	}
	return ConversationView{
		Conversation: cv,
		Unread:       cv.UnreadFor(uid),
		PeerID:       peer,
	}
}

//
// Handlers
//

// StartConversation godoc
// @ID          startConversation
// @Summary     Start or resume a conversation
// @Description Returns the single active conversation with the given peer, creating it if absent.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.StartConversationRequest  true  "Peer payload"
//
// @Success     201  {object}  handlers.ConversationView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PeerID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "peer_id required")
		return
	}

	uid := userID(c)
	cv, err := h.convSvc.Start(c.Request.Context(), uid, strings.TrimSpace(req.PeerID))
	if err != nil {
		if errors.Is(err, services.ErrSelfConversation) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot start a conversation with yourself")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, conversationView(*cv, uid))
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns a page of the user's visible conversations, most recently active first.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	uid := userID(c)
	page, pageSize := clampPagination(c)

	items, total, err := h.convSvc.ListPage(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	views := make([]ConversationView, 0, len(items))
	for _, cv := range items {
		views = append(views, conversationView(cv, uid))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListConversationsResponse{
		Conversations: views,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Fetch a conversation
// @Description Returns one conversation the user participates in.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     200  {object} handlers.ConversationView
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	uid := userID(c)
	cv, err := h.convSvc.Get(c.Request.Context(), uid, convID)
	if err != nil {
		failConversation(c, err)
		return
	}
	ok(c, http.StatusOK, conversationView(*cv, uid))
}

// HideConversation godoc
// @ID          hideConversation
// @Summary     Hide a conversation
// @Description Removes the conversation from the caller's list; the peer's view is unaffected.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/hide [post]
func (h *Handlers) HideConversation(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	if err := h.convSvc.Hide(c.Request.Context(), userID(c), convID); err != nil {
		failConversation(c, err)
		return
	}
	noContent(c)
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Soft-deletes the conversation for both participants.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	if err := h.convSvc.Delete(c.Request.Context(), userID(c), convID); err != nil {
		failConversation(c, err)
		return
	}
	noContent(c)
}

// failConversation maps conversation-level service errors onto the standard
// envelope.
func failConversation(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	case errors.Is(err, services.ErrNotParticipant):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "not a participant of this conversation")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
