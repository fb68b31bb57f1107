package services

import "context"

// Event names dispatched to the real-time transport. Delivery is
// fire-and-forget: a disconnected client simply misses the event.
const (
	EventNewMessage     = "new_message"
	EventMessageRead    = "message_read"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)

// Notifier pushes an event to a user's private real-time queue. The WebSocket
// hub implements it; a nil Notifier disables real-time dispatch (tests,
// offline tooling).
type Notifier interface {
	NotifyUser(ctx context.Context, userID, event string, payload any)
}

// Pusher delivers an out-of-band push notification to every device a user
// has registered. Implementations must not block message processing: failures
// are logged and swallowed downstream.
type Pusher interface {
	PushToUser(ctx context.Context, userID, title, body string)
}

// notify is a nil-safe helper for the optional Notifier field.
func notify(ctx context.Context, n Notifier, userID, event string, payload any) {
	if n != nil {
		n.NotifyUser(ctx, userID, event, payload)
	}
}
