package domain

import (
	"strings"
	"time"
)

// MessageKind determines how a message's content is interpreted.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
)

// AllThreadsFeed names the change feed carrying every customer's thread.
const AllThreadsFeed = "messages"

// ThreadFeed names the change feed of one customer's thread.
func ThreadFeed(userID string) string {
	return AllThreadsFeed + ":" + userID
}

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	return k == MessageKindText || k == MessageKindImage
}

// Message is one entry in a customer's support thread. Messages are append-only.
type Message struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Content     string      `json:"content"`
	Kind        MessageKind `json:"type"`
	IsFromStaff bool        `json:"is_admin"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Before orders messages by creation time, breaking ties on id.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// MessageDraft is the input for appending a message.
type MessageDraft struct {
	UserID      string
	Content     string
	Kind        MessageKind
	IsFromStaff bool
}

// Validate returns a field name and reason when the draft cannot be appended.
func (d MessageDraft) Validate() (string, string, bool) {
	if strings.TrimSpace(d.UserID) == "" {
		return "user_id", "user id required", false
	}
	if !d.Kind.Valid() {
		return "type", "unknown message type", false
	}
	if strings.TrimSpace(d.Content) == "" {
		if d.Kind == MessageKindImage {
			return "content", "image url required", false
		}
		return "content", "message content required", false
	}
	return "", "", true
}

// ConversationSummary is the inbox preview of a customer's most recent message.
type ConversationSummary struct {
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}
