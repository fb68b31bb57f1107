package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/agoranet/go-messenger-backend/internal/sysutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin policy is enforced upstream at the gateway.
	CheckOrigin: func(*http.Request) bool { return true },
}

var errNoToken = errors.New("missing access token")

// Handler upgrades authenticated requests to websocket connections and
// hands them to the hub.
type Handler struct {
	Hub       *Hub
	JWTSecret []byte
}

// Serve is the gin endpoint for GET /ws. The client authenticates with a
// bearer token in the Authorization header or a token query parameter
// (browsers cannot set headers on websocket dials).
func (h *Handler) Serve(c *gin.Context) {
	userID, err := h.authenticate(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("ws: upgrade failed")
		return
	}

	client := newClient(h.Hub, conn, userID)
	h.Hub.register <- client

	// The request context dies when this handler returns; the pumps
	// outlive it, so they run on the background context.
	go client.writePump()
	go client.readPump(context.Background())
}

// authenticate validates the handshake token and returns the subject.
func (h *Handler) authenticate(c *gin.Context) (string, error) {
	var bearer string
	if after, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		bearer = after
	}
	raw := sysutil.FirstNonEmpty(c.Query("token"), bearer)
	if raw == "" {
		return "", errNoToken
	}

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.JWTSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", jwt.ErrTokenInvalidSubject
	}
	return sub, nil
}
