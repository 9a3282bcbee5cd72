package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository defines persistence access for end-users.
type UserRepository interface {
	// Upsert ensures the user row exists. A nil name only guarantees
	// existence; a non-nil name overwrites the stored one.
	Upsert(ctx context.Context, id int64, name *string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Upsert(ctx context.Context, id int64, name *string) error {
	if name == nil {
		const query = `
        INSERT INTO users (telegram_user_id)
        VALUES ($1)
        ON CONFLICT (telegram_user_id) DO NOTHING`
		_, err := r.pool.Exec(ctx, query, id)
		return err
	}

	const query = `
        INSERT INTO users (telegram_user_id, name)
        VALUES ($1, $2)
        ON CONFLICT (telegram_user_id) DO UPDATE SET name = EXCLUDED.name`
	_, err := r.pool.Exec(ctx, query, id, *name)
	return err
}
