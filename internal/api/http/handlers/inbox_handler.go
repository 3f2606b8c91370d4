package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/service"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// InboxHandler serves the staff view over every customer's conversation.
type InboxHandler struct {
	messages *service.MessageService
}

// NewInboxHandler constructs handler.
func NewInboxHandler(messages *service.MessageService) *InboxHandler {
	return &InboxHandler{messages: messages}
}

// ListConversations GET /admin/conversations.
func (h *InboxHandler) ListConversations(c *fiber.Ctx) error {
	if _, err := staffID(c); err != nil {
		return err
	}
	summaries, err := h.messages.FetchAllLatestPerUser(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ConversationListResponse{Conversations: summaries}})
}

// ListMessages GET /admin/conversations/:userId/messages.
func (h *InboxHandler) ListMessages(c *fiber.Ctx) error {
	if _, err := staffID(c); err != nil {
		return err
	}
	thread, err := h.messages.FetchThread(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageListResponse{Messages: thread}})
}

// Reply POST /admin/conversations/:userId/messages.
func (h *InboxHandler) Reply(c *fiber.Ctx) error {
	if _, err := staffID(c); err != nil {
		return err
	}
	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return apperrors.NewValidationError("select a conversation first", map[string]any{"field": "user_id"})
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.AppendMessage(c.UserContext(), domain.MessageDraft{
		UserID:      userID,
		Content:     req.Content,
		Kind:        req.Kind(),
		IsFromStaff: true,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": msg})
}
