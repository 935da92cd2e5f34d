package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seal-agent/backend/internal/models"
)

type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

// Record journals a confirmed transfer. A second row for the same response
// is ignored.
func (r *PayoutRepo) Record(ctx context.Context, p *models.Payout) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO payouts (id, campaign_id, response_id, author_id, target_kind, target, amount, currency, tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (response_id) DO UPDATE SET response_id = EXCLUDED.response_id
		RETURNING id, created_at
	`, p.ID, p.CampaignID, p.ResponseID, p.AuthorID, p.TargetKind, p.Target, p.Amount, p.Currency, p.TxRef,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *PayoutRepo) List(ctx context.Context, campaignID string, limit, offset int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, campaign_id, response_id, author_id, target_kind, target, amount, currency, tx_ref, created_at
		FROM payouts WHERE ($1 = '' OR campaign_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.CampaignID, &p.ResponseID, &p.AuthorID, &p.TargetKind, &p.Target,
			&p.Amount, &p.Currency, &p.TxRef, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
