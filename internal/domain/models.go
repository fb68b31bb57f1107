// Package domain defines the persistence models for conversations, messages,
// translations, calls, and device tokens. These types are mapped with GORM
// and form the core data layer of the messenger backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message type tags accepted by the API and enforced by a DB constraint.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
	MessageTypeEmoji = "emoji"
)

// Terminal call outcomes. A call record is written exactly once, at
// resolution time, with one of these statuses.
const (
	CallStatusAccepted  = "accepted"
	CallStatusRejected  = "rejected"
	CallStatusMissed    = "missed"
	CallStatusCancelled = "cancelled"
)

// Device platforms for push-notification tokens.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Conversation is a persistent two-party messaging thread. The participant
// pair is stored in canonical order (the lexicographically lower user id
// occupies slot 1), so a unique index on (user1_id, user2_id) structurally
// prevents duplicate rows for the same unordered pair.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - User1ID / User2ID: participant identities in canonical order.
//   - User1Unread / User2Unread: per-slot unread counters, denormalized for
//     fast conversation-list rendering. Mutated only via SQL-side increments.
//   - LastMessage: preview text of the most recent non-deleted message.
//   - User1Hidden / User2Hidden: per-slot hide flags (list filtering only).
//   - CreatedAt / UpdatedAt: UpdatedAt drives most-recently-active ordering.
//   - DeletedAt: soft deletion marker (row retained, hidden from queries).
type Conversation struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	User1ID     string         `json:"user1_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:1"`
	User2ID     string         `json:"user2_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_conversation_pair,priority:2"`
	User1Unread int            `json:"user1_unread" gorm:"not null;default:0"`
	User2Unread int            `json:"user2_unread" gorm:"not null;default:0"`
	LastMessage string         `json:"last_message" gorm:"type:varchar(255);not null;default:''"`
	User1Hidden bool           `json:"-"            gorm:"not null;default:false"`
	User2Hidden bool           `json:"-"            gorm:"not null;default:false"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"   gorm:"index"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// IsParticipant reports whether userID occupies either slot.
func (c *Conversation) IsParticipant(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// UnreadFor returns the unread counter for the given participant, or 0 for
// a non-participant.
func (c *Conversation) UnreadFor(userID string) int {
	switch userID {
	case c.User1ID:
		return c.User1Unread
	case c.User2ID:
		return c.User2Unread
	}
	return 0
}

// Message is a single utterance within a conversation.
//
// The primary key is an autoincrement integer: within one conversation, id
// order is the authoritative message order (creation timestamps can suffer
// clock skew; ids cannot). The "last message" preview is therefore defined
// as the highest-id non-deleted message.
//
// Deletion is a soft flag rather than a gorm.DeletedAt column so that a
// deleted message stays reachable by direct id lookup while list and search
// queries filter it out explicitly.
type Message struct {
	ID             int64      `json:"id"              gorm:"primaryKey;autoIncrement"`
	ConversationID string     `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs"`
	SenderID       string     `json:"sender_id"       gorm:"type:varchar(64);not null;index"`
	Body           string     `json:"body"            gorm:"type:text;not null"`
	Type           string     `json:"type"            gorm:"type:varchar(16);not null;default:'text';check:type IN ('text','image','file','emoji')"`
	Read           bool       `json:"read"            gorm:"not null;default:false"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	Delivered      bool       `json:"delivered"       gorm:"not null;default:false"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	Edited         bool       `json:"edited"          gorm:"not null;default:false"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Deleted        bool       `json:"deleted"         gorm:"not null;default:false;index"`
	DeletedAt      *time.Time `json:"-"`
	ParentID       *int64     `json:"parent_id,omitempty" gorm:"index"`
	CreatedAt      time.Time  `json:"created_at"`

	// Conversation is the owning thread. Messages are cascade-deleted if
	// their conversation row is ever physically removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// MessageTranslation is a cached translation of one message for one user in
// one target language. The unique index enforces at-most-one entry per
// (message, user, language) triple; entries are created on first request and
// are immutable unless invalidation-on-edit is enabled in configuration.
type MessageTranslation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID int64     `json:"message_id" gorm:"not null;uniqueIndex:ux_translation_msg_user_lang,priority:1"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_translation_msg_user_lang,priority:2"`
	Language  string    `json:"language"   gorm:"type:varchar(12);not null;uniqueIndex:ux_translation_msg_user_lang,priority:3"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for MessageTranslation.
func (MessageTranslation) TableName() string { return "message_translations" }

// CallRecord summarizes one call attempt within a conversation. Signaling
// frames are transient and never persisted; exactly one record is written
// per attempt, at resolution time. DurationSec is set only for accepted
// calls. The conversation is referenced by id without an enforced FK graph.
type CallRecord struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string     `json:"conversation_id" gorm:"type:char(36);not null;index"`
	CallerID       string     `json:"caller_id"       gorm:"type:varchar(64);not null"`
	CalleeID       string     `json:"callee_id"       gorm:"type:varchar(64);not null"`
	Status         string     `json:"status"          gorm:"type:varchar(16);not null;check:status IN ('accepted','rejected','missed','cancelled')"`
	Video          bool       `json:"video"           gorm:"not null;default:false"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DurationSec    *int64     `json:"duration_sec,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName returns the database table name for CallRecord.
func (CallRecord) TableName() string { return "call_records" }

// DeviceToken registers an opaque push-notification token for a user's
// device. Tokens are globally unique; re-registering an existing token
// reassigns it to the new owner.
type DeviceToken struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);not null;index"`
	Token     string    `json:"token"    gorm:"type:varchar(255);not null;uniqueIndex"`
	Platform  string    `json:"platform" gorm:"type:varchar(16);not null;check:platform IN ('ios','android')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for DeviceToken.
func (DeviceToken) TableName() string { return "device_tokens" }

// ActivityRecord is one row of the asynchronous activity ledger. Entries are
// described explicitly at the call site and flushed by a background writer;
// recording never blocks or fails the wrapped operation.
type ActivityRecord struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Actor      string    `json:"actor"       gorm:"type:varchar(64);not null;index"`
	Action     string    `json:"action"      gorm:"type:varchar(64);not null;index"`
	EntityKind string    `json:"entity_kind" gorm:"type:varchar(32);not null"`
	EntityID   string    `json:"entity_id"   gorm:"type:varchar(64);not null"`
	Detail     string    `json:"detail"      gorm:"type:text;not null;default:''"`
	Outcome    string    `json:"outcome"     gorm:"type:varchar(16);not null;default:'ok'"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ActivityRecord.
func (ActivityRecord) TableName() string { return "activity_log" }
