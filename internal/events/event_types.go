package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/banking-support/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMessageAppended  EventType = "message_appended"
	EventTicketSubmitted  EventType = "ticket_submitted"
	EventRequestSubmitted EventType = "request_submitted"
	EventRequestReviewed  EventType = "request_reviewed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	UserID  *string            `json:"user_id,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// CustomerActor builds an actor for a customer action.
func CustomerActor(userID string) Actor {
	return Actor{Type: domain.SubjectTypeUser, UserID: &userID}
}

// StaffActor builds an actor for a staff action.
func StaffActor(staffID string) Actor {
	return Actor{Type: domain.SubjectTypeStaff, StaffID: &staffID}
}

// Event represents a domain event emitted by services. UserID is always the
// customer the event concerns; ResourceID is the message, ticket or request.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	UserID     string      `json:"user_id"`
	ResourceID string      `json:"resource_id"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, userID, resourceID string, actor Actor, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		ResourceID: resourceID,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
		Payload:    payload,
	}
}

// MessageAppendedPayload payload.
type MessageAppendedPayload struct {
	Kind        domain.MessageKind `json:"type"`
	IsFromStaff bool               `json:"is_admin"`
	Preview     string             `json:"preview"`
}

// TicketSubmittedPayload payload.
type TicketSubmittedPayload struct {
	Subject  string                `json:"subject"`
	Priority domain.TicketPriority `json:"priority"`
}

// RequestSubmittedPayload payload.
type RequestSubmittedPayload struct {
	Kind      domain.RequestKind   `json:"kind"`
	Amount    float64              `json:"amount"`
	Status    domain.RequestStatus `json:"status"`
	Documents int                  `json:"documents"`
}

// RequestReviewedPayload payload.
type RequestReviewedPayload struct {
	Kind       domain.RequestKind `json:"kind"`
	ReviewedAt time.Time          `json:"reviewed_at"`
}
