package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/banking-support/internal/domain"
)

// RequestRepository persists deposit, loan, grant, tax refund and investment requests.
// Each kind lives in its own table with a shared column layout.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.ServiceRequest) error
	GetByID(ctx context.Context, kind domain.RequestKind, id string) (*domain.ServiceRequest, error)
	ListByUser(ctx context.Context, kind domain.RequestKind, userID string, limit, offset int) ([]domain.ServiceRequest, error)
	// MarkReviewed moves a request to REVIEWED. It returns pgx.ErrNoRows when the
	// request does not exist or was already reviewed.
	MarkReviewed(ctx context.Context, kind domain.RequestKind, id, staffID string, at time.Time) error
}

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

func tableFor(kind domain.RequestKind) (string, error) {
	spec, ok := kind.Spec()
	if !ok {
		return "", fmt.Errorf("unknown request kind %q", kind)
	}
	return spec.Table, nil
}

func (r *requestRepository) Create(ctx context.Context, req *domain.ServiceRequest) error {
	table, err := tableFor(req.Kind)
	if err != nil {
		return err
	}
	documents := req.Documents
	if documents == nil {
		documents = []string{}
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (user_id, amount, details, document_urls, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`, table)
	return r.pool.QueryRow(ctx, query,
		req.UserID,
		req.Amount,
		req.Details,
		documents,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt)
}

func (r *requestRepository) GetByID(ctx context.Context, kind domain.RequestKind, id string) (*domain.ServiceRequest, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
        SELECT id, user_id, amount, details, document_urls, status, created_at, reviewed_at, reviewed_by
        FROM %s WHERE id::text=$1`, table)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list, err := scanRequests(rows, kind)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &list[0], nil
}

func (r *requestRepository) ListByUser(ctx context.Context, kind domain.RequestKind, userID string, limit, offset int) ([]domain.ServiceRequest, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset, 20)
	query := fmt.Sprintf(`
        SELECT id, user_id, amount, details, document_urls, status, created_at, reviewed_at, reviewed_by
        FROM %s WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, table)
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows, kind)
}

func (r *requestRepository) MarkReviewed(ctx context.Context, kind domain.RequestKind, id, staffID string, at time.Time) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
        UPDATE %s SET status=$1, reviewed_at=$2, reviewed_by=$3
        WHERE id::text=$4 AND status<>$1`, table)
	cmd, err := r.pool.Exec(ctx, query, domain.RequestStatusReviewed, at, staffID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanRequests(rows pgx.Rows, kind domain.RequestKind) ([]domain.ServiceRequest, error) {
	result := []domain.ServiceRequest{}
	for rows.Next() {
		req := domain.ServiceRequest{Kind: kind}
		if err := rows.Scan(
			&req.ID,
			&req.UserID,
			&req.Amount,
			&req.Details,
			&req.Documents,
			&req.Status,
			&req.CreatedAt,
			&req.ReviewedAt,
			&req.ReviewedBy,
		); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}
