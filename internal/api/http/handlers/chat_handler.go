package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/service"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// ChatHandler serves a customer's own conversation.
type ChatHandler struct {
	messages *service.MessageService
}

// NewChatHandler constructs handler.
func NewChatHandler(messages *service.MessageService) *ChatHandler {
	return &ChatHandler{messages: messages}
}

// ListMessages GET /chat/messages.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	thread, err := h.messages.FetchThread(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageListResponse{Messages: thread}})
}

// SendMessage POST /chat/messages.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.messages.AppendMessage(c.UserContext(), domain.MessageDraft{
		UserID:  userID,
		Content: req.Content,
		Kind:    req.Kind(),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": msg})
}

// SendImage POST /chat/images. The upload must succeed before the message is written.
func (h *ChatHandler) SendImage(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file required", map[string]any{"field": "file"})
	}
	file, closer, err := openUpload(fh)
	if err != nil {
		return err
	}
	defer closer.Close()

	msg, err := h.messages.SendImage(c.UserContext(), userID, false, file)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": msg})
}

// UploadAttachment POST /chat/attachments stores a file without posting a
// message and returns its public URL.
func (h *ChatHandler) UploadAttachment(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file required", map[string]any{"field": "file"})
	}
	file, closer, err := openUpload(fh)
	if err != nil {
		return err
	}
	defer closer.Close()

	url, err := h.messages.UploadAttachment(c.UserContext(), userID, file)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"url": url}})
}
