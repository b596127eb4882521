package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

type promoRepository struct {
	db *sql.DB
}

// NewPromoRepository создаёт PostgreSQL-реализацию PromoRepository.
func NewPromoRepository(store *Store) domain.PromoRepository {
	return &promoRepository{db: store.DB()}
}

func (r *promoRepository) ListActivePromos(ctx context.Context) ([]domain.FlashPromo, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_text, is_active, created_at
		FROM flash_promos
		WHERE is_active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active promos: %w", err)
	}
	defer rows.Close()

	var promos []domain.FlashPromo
	for rows.Next() {
		var p domain.FlashPromo
		if err := rows.Scan(&p.ID, &p.Message, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flash promo: %w", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		promos = append(promos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flash promos: %w", err)
	}
	return promos, nil
}

func (r *promoRepository) SavePromo(ctx context.Context, p domain.FlashPromo) error {
	if p.ID == "" {
		return &domain.ValidationError{Field: "promo_id", Reason: "is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var createdAt any
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO flash_promos (id, message_text, is_active, created_at)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			message_text = EXCLUDED.message_text,
			is_active = EXCLUDED.is_active
	`, p.ID, p.Message, p.Active, createdAt)
	if err != nil {
		return fmt.Errorf("save flash promo: %w", err)
	}
	return nil
}

func (r *promoRepository) DeletePromo(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM flash_promos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flash promo: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for flash promo: %w", err)
	}
	if affected == 0 {
		return domain.ErrPromoNotFound
	}
	return nil
}

var _ domain.PromoRepository = (*promoRepository)(nil)
