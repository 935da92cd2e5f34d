package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seal-agent/backend/internal/models"
)

type ThanksRepo struct {
	pool *pgxpool.Pool
}

func NewThanksRepo(pool *pgxpool.Pool) *ThanksRepo {
	return &ThanksRepo{pool: pool}
}

func (r *ThanksRepo) Record(ctx context.Context, t *models.ThanksPost) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO thanks_posts (tx_hash, sender, value, post_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_hash) DO UPDATE SET post_id = EXCLUDED.post_id
		RETURNING created_at
	`, t.TxHash, t.Sender, t.Value, t.PostID).Scan(&t.CreatedAt)
}
