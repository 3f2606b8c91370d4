package dto

import (
	"time"

	"github.com/ledgerline/banking-support/internal/domain"
)

// CreateSupportTicketRequest payload for the support form.
type CreateSupportTicketRequest struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

// SupportTicketResponse is a stored support ticket.
type SupportTicketResponse struct {
	ID        string                `json:"id"`
	UserID    string                `json:"user_id"`
	Subject   string                `json:"subject"`
	Message   string                `json:"message"`
	Priority  domain.TicketPriority `json:"priority"`
	Status    domain.TicketStatus   `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
}

// NewSupportTicketResponse maps a domain ticket.
func NewSupportTicketResponse(ticket *domain.SupportTicket) SupportTicketResponse {
	return SupportTicketResponse{
		ID:        ticket.ID,
		UserID:    ticket.UserID,
		Subject:   ticket.Subject,
		Message:   ticket.Message,
		Priority:  ticket.Priority,
		Status:    ticket.Status,
		CreatedAt: ticket.CreatedAt,
	}
}
