package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-bot/internal/domain"
)

const ticketColumns = `id, user_id, user_display_name, category, question_text,
               status, operator_user_id, group_chat_id, group_message_id,
               created_at, updated_at`

// TicketRepository encapsulates ticket persistence. Concurrency control is
// delegated to the database: the unique index on (group_chat_id,
// group_message_id) and row-level update semantics are the correctness
// boundary.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// SetGroupMessage records the announcement message id. Callers must call
	// it exactly once, directly after the announcement send succeeds.
	SetGroupMessage(ctx context.Context, ticketID int64, messageID int) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByGroupMessage(ctx context.Context, groupChatID int64, messageID int) (*domain.Ticket, error)
	// MarkAnswered sets status and operator atomically. A repeat call
	// overwrites operator and timestamp (last writer wins).
	MarkAnswered(ctx context.Context, ticketID, operatorID int64) error
	// ListOrphaned returns tickets whose announcement was never posted.
	ListOrphaned(ctx context.Context, limit int) ([]domain.Ticket, error)
	ListRecent(ctx context.Context, limit, offset int) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, user_display_name, category, question_text, status, group_chat_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`

	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusNew
	}
	return r.pool.QueryRow(ctx, query,
		ticket.UserID,
		ticket.UserDisplayName,
		ticket.Category,
		ticket.Question,
		ticket.Status,
		ticket.GroupChatID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) SetGroupMessage(ctx context.Context, ticketID int64, messageID int) error {
	const query = `
        UPDATE tickets SET group_message_id=$1, updated_at=NOW()
        WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, messageID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByGroupMessage(ctx context.Context, groupChatID int64, messageID int) (*domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets WHERE group_chat_id=$1 AND group_message_id=$2`
	return r.fetchSingle(ctx, query, groupChatID, messageID)
}

func (r *ticketRepository) MarkAnswered(ctx context.Context, ticketID, operatorID int64) error {
	const query = `
        UPDATE tickets SET status=$1, operator_user_id=$2, updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, domain.TicketStatusAnswered, operatorID, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListOrphaned(ctx context.Context, limit int) ([]domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets WHERE group_message_id IS NULL
        ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListRecent(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets
        ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, query, normalizeLimit(limit), offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.UserDisplayName,
		&ticket.Category,
		&ticket.Question,
		&ticket.Status,
		&ticket.OperatorID,
		&ticket.GroupChatID,
		&ticket.GroupMessageID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UserID,
			&ticket.UserDisplayName,
			&ticket.Category,
			&ticket.Question,
			&ticket.Status,
			&ticket.OperatorID,
			&ticket.GroupChatID,
			&ticket.GroupMessageID,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
