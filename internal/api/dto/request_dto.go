package dto

import (
	"time"

	"github.com/ledgerline/banking-support/internal/domain"
)

// ServiceRequestResponse is a stored banking request.
type ServiceRequestResponse struct {
	ID         string               `json:"id"`
	Kind       domain.RequestKind   `json:"kind"`
	UserID     string               `json:"user_id"`
	Amount     float64              `json:"amount"`
	Details    map[string]string    `json:"details"`
	Documents  []string             `json:"documents"`
	Status     domain.RequestStatus `json:"status"`
	CreatedAt  time.Time            `json:"created_at"`
	ReviewedAt *time.Time           `json:"reviewed_at,omitempty"`
	ReviewedBy *string              `json:"reviewed_by,omitempty"`
}

// NewServiceRequestResponse maps a domain request.
func NewServiceRequestResponse(req *domain.ServiceRequest) ServiceRequestResponse {
	return ServiceRequestResponse{
		ID:         req.ID,
		Kind:       req.Kind,
		UserID:     req.UserID,
		Amount:     req.Amount,
		Details:    req.Details,
		Documents:  req.Documents,
		Status:     req.Status,
		CreatedAt:  req.CreatedAt,
		ReviewedAt: req.ReviewedAt,
		ReviewedBy: req.ReviewedBy,
	}
}
