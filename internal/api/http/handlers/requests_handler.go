package handlers

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/service"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// RequestsHandler serves deposit, loan, grant, tax refund and investment forms.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// Submit POST /requests/:kind as multipart: amount, details[<name>] fields
// and any number of documents files.
func (h *RequestsHandler) Submit(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return apperrors.NewValidationError("multipart form required", nil)
	}

	amount, err := parseAmount(firstValue(form.Value["amount"]))
	if err != nil {
		return err
	}

	docs := make([]storage.File, 0, len(form.File["documents"]))
	for _, fh := range form.File["documents"] {
		file, closer, err := openUpload(fh)
		if err != nil {
			return err
		}
		defer closer.Close()
		docs = append(docs, file)
	}

	req, err := h.service.Submit(c.UserContext(), service.SubmitRequestInput{
		Kind:      domain.RequestKind(c.Params("kind")),
		UserID:    userID,
		Amount:    amount,
		Details:   formDetails(form),
		Documents: docs,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewServiceRequestResponse(req)})
}

// List GET /requests/:kind.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	userID, err := customerID(c)
	if err != nil {
		return err
	}
	limit, offset := page(c)
	reqs, err := h.service.List(c.UserContext(), domain.RequestKind(c.Params("kind")), userID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.ServiceRequestResponse, 0, len(reqs))
	for i := range reqs {
		items = append(items, dto.NewServiceRequestResponse(&reqs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Review POST /admin/requests/:kind/:id/review.
func (h *RequestsHandler) Review(c *fiber.Ctx) error {
	reviewer, err := staffID(c)
	if err != nil {
		return err
	}
	req, err := h.service.MarkReviewed(c.UserContext(), domain.RequestKind(c.Params("kind")), c.Params("id"), reviewer)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewServiceRequestResponse(req)})
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func parseAmount(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("amount must be a number", map[string]any{"field": "amount"})
	}
	return amount, nil
}

// formDetails collects details[<name>] fields.
func formDetails(form *multipart.Form) map[string]string {
	details := make(map[string]string)
	for key, values := range form.Value {
		if !strings.HasPrefix(key, "details[") || !strings.HasSuffix(key, "]") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "details["), "]")
		details[name] = firstValue(values)
	}
	return details
}
