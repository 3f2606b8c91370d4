package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/events"
	"github.com/ledgerline/banking-support/internal/observability"
	"github.com/ledgerline/banking-support/internal/repository"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// SubmitRequestInput carries a deposit, loan, grant, tax refund or investment form.
type SubmitRequestInput struct {
	Kind      domain.RequestKind
	UserID    string
	Amount    float64
	Details   map[string]string
	Documents []storage.File
}

// RequestService handles banking requests and their proof documents.
type RequestService struct {
	requests   repository.RequestRepository
	uploader   *storage.Uploader
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewRequestService builds the service.
func NewRequestService(requests repository.RequestRepository, uploader *storage.Uploader, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *RequestService {
	return &RequestService{
		requests:   requests,
		uploader:   uploader,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Submit validates the form, uploads every document, then writes the request
// row. The first failed upload aborts the submission and nothing is written.
func (s *RequestService) Submit(ctx context.Context, input SubmitRequestInput) (*domain.ServiceRequest, error) {
	spec, err := kindSpec(input.Kind)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(spec, input); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(input.Documents))
	for _, doc := range input.Documents {
		att, err := s.uploader.Upload(ctx, spec.Bucket, input.UserID, spec.FilePrefix, doc)
		if err != nil {
			return nil, err
		}
		urls = append(urls, att.URL)
	}

	req := &domain.ServiceRequest{
		Kind:      input.Kind,
		UserID:    input.UserID,
		Amount:    input.Amount,
		Details:   cleanDetails(input.Details),
		Documents: urls,
		Status:    spec.InitialStatus,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		s.logger.Error("create request failed",
			zap.String("kind", string(input.Kind)),
			zap.String("user_id", input.UserID),
			zap.Error(err),
		)
		return nil, apperrors.NewWriteFailed("request could not be submitted", err)
	}

	s.metrics.RequestRecorded(string(req.Kind), "submitted")
	s.publish(ctx, events.New(events.EventRequestSubmitted, req.UserID, req.ID, events.CustomerActor(req.UserID),
		events.RequestSubmittedPayload{Kind: req.Kind, Amount: req.Amount, Status: req.Status, Documents: len(urls)}))
	return req, nil
}

// List returns the customer's requests of one kind, newest first.
func (s *RequestService) List(ctx context.Context, kind domain.RequestKind, userID string, limit, offset int) ([]domain.ServiceRequest, error) {
	if _, err := kindSpec(kind); err != nil {
		return nil, err
	}
	return s.requests.ListByUser(ctx, kind, userID, limit, offset)
}

// MarkReviewed moves a request to REVIEWED. Each request is reviewed once.
func (s *RequestService) MarkReviewed(ctx context.Context, kind domain.RequestKind, id, staffID string) (*domain.ServiceRequest, error) {
	if _, err := kindSpec(kind); err != nil {
		return nil, err
	}
	current, err := s.requests.GetByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("request", map[string]any{"kind": kind, "id": id})
		}
		return nil, err
	}
	if current.Status == domain.RequestStatusReviewed {
		return nil, alreadyReviewed(kind, id)
	}

	at := s.now().UTC()
	if err := s.requests.MarkReviewed(ctx, kind, id, staffID, at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, alreadyReviewed(kind, id)
		}
		return nil, apperrors.NewWriteFailed("review could not be saved", err)
	}

	reviewer := staffID
	current.Status = domain.RequestStatusReviewed
	current.ReviewedAt = &at
	current.ReviewedBy = &reviewer

	s.metrics.RequestRecorded(string(kind), "reviewed")
	s.publish(ctx, events.New(events.EventRequestReviewed, current.UserID, current.ID, events.StaffActor(staffID),
		events.RequestReviewedPayload{Kind: kind, ReviewedAt: at}))
	return current, nil
}

func (s *RequestService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("request event handlers failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}

func kindSpec(kind domain.RequestKind) (domain.RequestKindSpec, error) {
	spec, ok := kind.Spec()
	if !ok {
		return spec, apperrors.NewValidationError("unknown request kind", map[string]any{"field": "kind", "value": kind})
	}
	return spec, nil
}

func validateRequest(spec domain.RequestKindSpec, input SubmitRequestInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return apperrors.NewAuthRequired("sign in to submit requests")
	}
	if spec.RequiresAmount && input.Amount <= 0 {
		return apperrors.NewValidationError("amount must be greater than zero", map[string]any{"field": "amount"})
	}
	if input.Amount < 0 {
		return apperrors.NewValidationError("amount cannot be negative", map[string]any{"field": "amount"})
	}
	if spec.MinAmount > 0 && input.Amount < spec.MinAmount {
		return apperrors.NewValidationError("amount below minimum", map[string]any{
			"field":   "amount",
			"minimum": spec.MinAmount,
		})
	}
	if spec.RequiresDocuments && len(input.Documents) == 0 {
		alt := spec.DocumentAlternative
		if alt == "" || strings.TrimSpace(input.Details[alt]) == "" {
			details := map[string]any{"field": "documents"}
			if alt != "" {
				details["alternative"] = alt
			}
			return apperrors.NewValidationError("supporting document required", details)
		}
	}
	return nil
}

func alreadyReviewed(kind domain.RequestKind, id string) error {
	return apperrors.NewValidationError("request already reviewed", map[string]any{"kind": kind, "id": id})
}

func cleanDetails(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
