// Package services defines the business logic for conversations, messages,
// translations, calls, and device registration. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

// Conversation-related errors.
var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not visible to the current user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrNotParticipant is returned when the acting user is not a member of
	// the addressed conversation.
	ErrNotParticipant = errors.New("user is not a participant of this conversation")

	// ErrSelfConversation is returned when a user attempts to start a
	// conversation with themselves.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
)

// Message-related errors.
var (
	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyBody is returned when a send or edit carries an empty body.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrBodyTooLong is returned when a message body exceeds the configured
	// maximum length.
	ErrBodyTooLong = errors.New("message body too long")

	// ErrInvalidMessageType is returned for a type tag outside
	// text/image/file/emoji.
	ErrInvalidMessageType = errors.New("invalid message type")

	// ErrNotSender is returned when a user tries to edit or delete a message
	// they did not send.
	ErrNotSender = errors.New("only the sender can modify this message")
)

// Translation-related errors.
var (
	// ErrInvalidLanguage is returned when the target language is not a
	// well-formed BCP 47 tag.
	ErrInvalidLanguage = errors.New("invalid target language")
)

// Call-related errors.
var (
	// ErrInvalidCallStatus is returned when a call resolution carries a
	// status outside accepted/rejected/missed/cancelled.
	ErrInvalidCallStatus = errors.New("invalid call status")
)

// Device-related errors.
var (
	// ErrEmptyToken is returned when a device registration carries a blank
	// token.
	ErrEmptyToken = errors.New("device token is empty")

	// ErrInvalidPlatform is returned when a device registration names a
	// platform other than ios or android.
	ErrInvalidPlatform = errors.New("platform must be ios or android")

	// ErrDeviceNotFound is returned when unregistering a token that is not
	// registered to the acting user.
	ErrDeviceNotFound = errors.New("device token not found")
)
