// Call HTTP handlers.
//
// Signaling itself runs over the websocket transport; the HTTP surface only
// exposes durable call summaries and session token issuance:
//   - GET  /conversations/{id}/calls       (paginated call history)
//   - POST /conversations/{id}/call-token  (short-lived session token)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// ListCallsResponse contains a page of call summaries and pagination metadata.
type ListCallsResponse struct {
	Calls      []domain.CallRecord `json:"calls"`
	Pagination Pagination          `json:"pagination"`
}

// CallTokenResponse carries a signed call session token.
type CallTokenResponse struct {
	Token string `json:"token"`
}

// ListCalls godoc
// @ID          listCalls
// @Summary     List call history
// @Description Returns finished call summaries for the conversation, newest first.
// @Tags        Calls
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCallsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/calls [get]
func (h *Handlers) ListCalls(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.callSvc.HistoryPage(c.Request.Context(), userID(c), convID, page, pageSize)
	if err != nil {
		failConversation(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListCallsResponse{
		Calls: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// IssueCallToken godoc
// @ID          issueCallToken
// @Summary     Issue a call session token
// @Description Mints a short-lived signed token scoped to the caller and conversation.
// @Tags        Calls
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.CallTokenResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/call-token [post]
func (h *Handlers) IssueCallToken(c *gin.Context) {
	convID := c.Param("id")
	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	tok, err := h.callSvc.IssueToken(c.Request.Context(), userID(c), convID)
	if err != nil {
		failConversation(c, err)
		return
	}
	ok(c, http.StatusOK, CallTokenResponse{Token: tok})
}
