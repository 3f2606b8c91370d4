package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for support tickets.
type TicketStatus string

const (
	TicketStatusOpen TicketStatus = "OPEN"
)

// TicketPriority enumerates customer-selected urgency.
type TicketPriority string

const (
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// ParseTicketPriority normalizes input; empty selects NORMAL.
func ParseTicketPriority(raw string) (TicketPriority, bool) {
	switch TicketPriority(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", TicketPriorityNormal:
		return TicketPriorityNormal, true
	case TicketPriorityHigh:
		return TicketPriorityHigh, true
	case TicketPriorityUrgent:
		return TicketPriorityUrgent, true
	}
	return "", false
}

// SupportTicket is a one-shot structured support request.
type SupportTicket struct {
	ID        string
	UserID    string
	Subject   string
	Message   string
	Priority  TicketPriority
	Status    TicketStatus
	CreatedAt time.Time
}
