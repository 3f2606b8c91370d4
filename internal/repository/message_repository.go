package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/ledgerline/banking-support/internal/domain"
)

// MessageRepository is append-only access to the support message log.
type MessageRepository interface {
	// Append assigns ID and CreatedAt and stores the message.
	Append(ctx context.Context, msg *domain.Message) error
	// ListByUser returns one customer's thread, oldest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Message, error)
	// ListNewestFirst returns every message, newest first.
	ListNewestFirst(ctx context.Context) ([]domain.Message, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds a Postgres-backed repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (id, user_id, content, type, is_admin)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	id := ulid.Make().String()
	if err := r.pool.QueryRow(ctx, query,
		id,
		msg.UserID,
		msg.Content,
		msg.Kind,
		msg.IsFromStaff,
	).Scan(&msg.CreatedAt); err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (r *messageRepository) ListByUser(ctx context.Context, userID string) ([]domain.Message, error) {
	const query = `
        SELECT id, user_id, content, type, is_admin, created_at
        FROM messages WHERE user_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListNewestFirst scans the whole table. Inbox summaries are derived from it.
func (r *messageRepository) ListNewestFirst(ctx context.Context) ([]domain.Message, error) {
	const query = `
        SELECT id, user_id, content, type, is_admin, created_at
        FROM messages ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	result := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.UserID,
			&msg.Content,
			&msg.Kind,
			&msg.IsFromStaff,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
