// Package push delivers out-of-band notifications to registered devices
// through an HTTP gateway keyed by opaque, platform-tagged tokens. Delivery
// is strictly best-effort: failures are logged and swallowed so a broken
// push provider never affects message persistence or real-time dispatch.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/repo"
)

// Sender fans one notification out to every device a user has registered.
type Sender struct {
	// DB resolves the user's registered device tokens.
	DB *gorm.DB
	// GatewayURL is the delivery endpoint; empty disables sending entirely.
	GatewayURL string
	// APIKey, when set, authenticates against the gateway.
	APIKey string
	// HTTPClient defaults to a client with a 5s timeout.
	HTTPClient *http.Client
}

type pushPayload struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// PushToUser sends title/body to each of the user's devices. Errors are
// logged per device and never returned.
func (s *Sender) PushToUser(ctx context.Context, userID, title, body string) {
	if s.GatewayURL == "" {
		return
	}

	devices, err := repo.ListDeviceTokens(ctx, s.DB, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("push: device lookup failed")
		return
	}

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	for _, d := range devices {
		payload, err := json.Marshal(pushPayload{
			Token:    d.Token,
			Platform: d.Platform,
			Title:    title,
			Body:     body,
		})
		if err != nil {
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.GatewayURL, bytes.NewReader(payload))
		if err != nil {
			log.Error().Err(err).Msg("push: request build failed")
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if s.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			log.Warn().Err(err).
				Str("user_id", userID).
				Str("platform", d.Platform).
				Msg("push delivery failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Warn().
				Int("status", resp.StatusCode).
				Str("user_id", userID).
				Str("platform", d.Platform).
				Msg("push gateway rejected notification")
		}
	}
}
