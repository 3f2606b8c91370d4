package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/service"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// TicketsHandler manages the customer support form.
type TicketsHandler struct {
	service *service.SupportService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(supportService *service.SupportService) *TicketsHandler {
	return &TicketsHandler{service: supportService}
}

// CreateTicket POST /support/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	var req dto.CreateSupportTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.SubmitTicket(c.UserContext(), service.SubmitTicketInput{
		UserID:   userID,
		Subject:  req.Subject,
		Message:  req.Message,
		Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewSupportTicketResponse(ticket)})
}

// ListTickets GET /support/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	limit, offset := page(c)
	tickets, err := h.service.ListTickets(c.UserContext(), userID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.SupportTicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewSupportTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
