package domain

import (
	"context"
	"time"
)

// ConversationLog receives every processed exchange. Implementations write to
// the conversation store read by the dashboard, or fan out to a broker.
type ConversationLog interface {
	Record(ctx context.Context, ex Exchange) error
}

// ConversationStore is a ConversationLog that can also be read back.
type ConversationStore interface {
	ConversationLog
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	GetMessages(ctx context.Context, convID string, limit int) ([]Turn, error)
	Close() error
}

// Exchange is one inbound turn plus the bot's reply, if any.
type Exchange struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Channel        string    `json:"channel"`
	SenderName     string    `json:"sender_name,omitempty"`
	State          string    `json:"state"`
	NeedsHuman     bool      `json:"needs_human"`
	Inbound        Turn      `json:"inbound"`
	Outbound       *Turn     `json:"outbound,omitempty"`
	At             time.Time `json:"at"`
}

// Turn is a single message row in a conversation.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	From           string    `json:"from"`      // user | bot
	Direction      string    `json:"direction"` // in | out
	Text           string    `json:"text"`
	IntentID       string    `json:"intent_id,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	StatusCode     int       `json:"status_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is the per-sender summary row the dashboard lists.
type Conversation struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Channel         string    `json:"channel"`
	SenderName      string    `json:"sender_name"`
	State           string    `json:"state"`
	NeedsHuman      bool      `json:"needs_human"`
	Status          string    `json:"status"` // open | pending
	LastMessageText string    `json:"last_message_text"`
	LastMessageAt   time.Time `json:"last_message_at"`
	UnreadCount     int       `json:"unread_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ConversationID returns the store key for a WhatsApp sender.
func ConversationID(phone string) string {
	return "wa:" + phone
}
