package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/events"
	"github.com/ledgerline/banking-support/internal/observability"
	"github.com/ledgerline/banking-support/internal/repository"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// SubmitTicketInput carries the support form.
type SubmitTicketInput struct {
	UserID   string
	Subject  string
	Message  string
	Priority string
}

// SupportService handles one-shot support tickets.
type SupportService struct {
	tickets    repository.SupportTicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewSupportService builds the service.
func NewSupportService(tickets repository.SupportTicketRepository, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *SupportService {
	return &SupportService{tickets: tickets, dispatcher: dispatcher, logger: logger, metrics: metrics}
}

// SubmitTicket validates the form before anything is written, then stores an OPEN ticket.
func (s *SupportService) SubmitTicket(ctx context.Context, input SubmitTicketInput) (*domain.SupportTicket, error) {
	subject := strings.TrimSpace(input.Subject)
	message := strings.TrimSpace(input.Message)

	switch {
	case strings.TrimSpace(input.UserID) == "":
		return nil, apperrors.NewAuthRequired("sign in to contact support")
	case subject == "":
		return nil, apperrors.NewValidationError("subject is required", map[string]any{"field": "subject"})
	case message == "":
		return nil, apperrors.NewValidationError("message is required", map[string]any{"field": "message"})
	}
	priority, ok := domain.ParseTicketPriority(input.Priority)
	if !ok {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{
			"field":   "priority",
			"allowed": []domain.TicketPriority{domain.TicketPriorityNormal, domain.TicketPriorityHigh, domain.TicketPriorityUrgent},
		})
	}

	ticket := &domain.SupportTicket{
		UserID:   input.UserID,
		Subject:  subject,
		Message:  message,
		Priority: priority,
		Status:   domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.logger.Error("create support ticket failed", zap.String("user_id", input.UserID), zap.Error(err))
		return nil, apperrors.NewWriteFailed("ticket could not be submitted", err)
	}

	s.metrics.TicketSubmitted(string(priority))
	if s.dispatcher != nil {
		event := events.New(events.EventTicketSubmitted, ticket.UserID, ticket.ID, events.CustomerActor(ticket.UserID),
			events.TicketSubmittedPayload{Subject: ticket.Subject, Priority: ticket.Priority})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("ticket event handlers failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

// ListTickets returns the customer's tickets, newest first.
func (s *SupportService) ListTickets(ctx context.Context, userID string, limit, offset int) ([]domain.SupportTicket, error) {
	return s.tickets.ListByUser(ctx, userID, limit, offset)
}
