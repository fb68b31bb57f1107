// Package ws implements the real-time transport: a WebSocket hub with
// per-user queues, Redis pub/sub fan-out across nodes, typing and message
// events, and transient call signaling. Dispatch is fire-and-forget; a
// disconnected client misses ephemeral events with no replay.
package ws

import "encoding/json"

// Client-originated and server-dispatched frame types.
const (
	// Inbound from clients.
	FrameTyping      = "typing"
	FrameSendMessage = "send_message"
	FrameMarkRead    = "mark_read"

	// Call signaling, relayed peer-to-peer and never persisted per-frame.
	FrameCallRequest = "call_request"
	FrameCallAccept  = "call_accept"
	FrameCallReject  = "call_reject"
	FrameCallEnd     = "call_end"
	FrameCallBusy    = "call_busy"
	FrameCallCancel  = "call_cancel"
	FrameCallMissed  = "call_missed"

	// Outbound error frame for malformed or rejected client input.
	FrameError = "error"
)

// Event is the wire frame exchanged over the WebSocket and the Redis
// fan-out channel.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	From           string          `json:"from,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// envelope targets an Event at one user when crossing the broker. Origin
// identifies the publishing node so subscribers can tell their own
// envelopes from a peer node's.
type envelope struct {
	UserID string `json:"user_id"`
	Event  Event  `json:"event"`
	Origin string `json:"origin,omitempty"`
}

// sendMessagePayload is the body of a FrameSendMessage frame.
type sendMessagePayload struct {
	PeerID   string `json:"peer_id"`
	Body     string `json:"body"`
	Type     string `json:"type"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// callPayload carries the optional media flag on call_request frames.
type callPayload struct {
	Video bool `json:"video"`
}

func isCallFrame(t string) bool {
	switch t {
	case FrameCallRequest, FrameCallAccept, FrameCallReject,
		FrameCallEnd, FrameCallBusy, FrameCallCancel, FrameCallMissed:
		return true
	}
	return false
}
