package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

type menuRepository struct {
	db *sql.DB
}

// NewMenuRepository создаёт PostgreSQL-реализацию MenuRepository.
func NewMenuRepository(store *Store) domain.MenuRepository {
	return &menuRepository{db: store.DB()}
}

func (r *menuRepository) ListAvailable(ctx context.Context) ([]domain.MenuItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price, category, image_url, is_available, created_at
		FROM menu_items
		WHERE is_available
		ORDER BY category, name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list available menu items: %w", err)
	}
	defer rows.Close()

	var items []domain.MenuItem
	for rows.Next() {
		var (
			item        domain.MenuItem
			category    string
			description sql.NullString
			imageURL    sql.NullString
		)
		if err := rows.Scan(
			&item.ID, &item.Name, &description, &item.PriceMinor, &category,
			&imageURL, &item.Available, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		item.Category = domain.Category(category)
		item.Description = description.String
		item.ImageURL = imageURL.String
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate menu items: %w", err)
	}

	return items, nil
}

func (r *menuRepository) SaveMenuItem(ctx context.Context, item domain.MenuItem) error {
	if errs := item.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO menu_items (id, name, description, price, category, image_url, is_available)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			image_url = EXCLUDED.image_url,
			is_available = EXCLUDED.is_available
	`,
		item.ID, item.Name, item.Description, item.PriceMinor, string(item.Category),
		item.ImageURL, item.Available,
	)
	if err != nil {
		return fmt.Errorf("save menu item: %w", err)
	}
	return nil
}

var _ domain.MenuRepository = (*menuRepository)(nil)
