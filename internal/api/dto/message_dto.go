package dto

import "github.com/ledgerline/banking-support/internal/domain"

// SendMessageRequest posts a message. Type defaults to text; an image
// message carries the URL returned by an upload.
type SendMessageRequest struct {
	Content string             `json:"content"`
	Type    domain.MessageKind `json:"type,omitempty"`
}

// Kind resolves the requested message type.
func (r SendMessageRequest) Kind() domain.MessageKind {
	if r.Type == "" {
		return domain.MessageKindText
	}
	return r.Type
}

// MessageListResponse wraps a thread. Messages already carry their wire tags.
type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
}

// ConversationListResponse wraps the staff inbox summaries.
type ConversationListResponse struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
}
