package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if errs := order.ValidateHeader(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var createdAt any
	if !order.CreatedAt.IsZero() {
		createdAt = order.CreatedAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, table_number, status, total_price, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
	`, order.ID, order.TableNumber, string(order.Status), order.TotalMinor, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertOrderLines пишет все позиции одним INSERT: батч атомарен сам по себе.
func (r *orderRepository) InsertOrderLines(ctx context.Context, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	var (
		query strings.Builder
		args  = make([]any, 0, len(lines)*6)
	)
	query.WriteString(`INSERT INTO order_items (id, order_id, menu_item_id, quantity, price_at_time_of_order, created_at) VALUES `)
	for i, line := range lines {
		if strings.TrimSpace(line.ID) == "" {
			return &domain.ValidationError{Field: "line_id", Reason: "is required"}
		}
		if errs := line.Validate(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if i > 0 {
			query.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&query, "($%d, $%d, $%d, $%d, $%d, COALESCE($%d::timestamptz, NOW()))", n+1, n+2, n+3, n+4, n+5, n+6)

		var createdAt any
		if !line.CreatedAt.IsZero() {
			createdAt = line.CreatedAt.UTC()
		}
		args = append(args, line.ID, line.OrderID, line.MenuItemID, line.Qty, line.UnitPriceMinor, createdAt)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query.String(), args...); err != nil {
		switch pgCode(err) {
		case pgForeignKeyViolation:
			return fmt.Errorf("insert order lines: %w", domain.ErrOrderNotFound)
		case pgUniqueViolation:
			return fmt.Errorf("insert order lines: %w", domain.ErrOrderAlreadyExists)
		}
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	if !status.Valid() {
		return domain.ErrOrderStatusInvalid
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $2
		WHERE id = $1 AND status = 'pending' AND $2 <> 'pending'
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for order status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("load order status: %w", err)
	}
	if domain.OrderStatus(current) == status {
		return nil
	}
	return fmt.Errorf("%s -> %s: %w", current, status, domain.ErrInvalidStatusTransition)
}

// ListPending читает заголовки и позиции одним запросом, чтобы доска видела согласованный снимок.
func (r *orderRepository) ListPending(ctx context.Context) ([]domain.Order, error) {
	return r.queryOrders(ctx, `o.status = 'pending'`)
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	orders, err := r.queryOrders(ctx, `o.id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (r *orderRepository) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.table_number, o.status, o.total_price, o.created_at,
		       oi.id, oi.menu_item_id, oi.quantity, oi.price_at_time_of_order, oi.created_at,
		       m.id, m.name, m.description, m.price, m.category, m.image_url, m.is_available, m.created_at
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN menu_items m ON m.id = oi.menu_item_id
		WHERE `+where+`
		ORDER BY o.created_at, o.id, oi.created_at, oi.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		index  = make(map[string]int)
	)
	for rows.Next() {
		var (
			order  domain.Order
			status string

			lineID, menuItemID  sql.NullString
			qty                 sql.NullInt32
			unitPrice           sql.NullInt64
			lineCreated         sql.NullTime
			itemID, itemName    sql.NullString
			itemDesc, itemImage sql.NullString
			itemCategory        sql.NullString
			itemPrice           sql.NullInt64
			itemAvailable       sql.NullBool
			itemCreated         sql.NullTime
		)
		if err := rows.Scan(
			&order.ID, &order.TableNumber, &status, &order.TotalMinor, &order.CreatedAt,
			&lineID, &menuItemID, &qty, &unitPrice, &lineCreated,
			&itemID, &itemName, &itemDesc, &itemPrice, &itemCategory, &itemImage, &itemAvailable, &itemCreated,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		pos, seen := index[order.ID]
		if !seen {
			order.Status = domain.OrderStatus(status)
			order.CreatedAt = order.CreatedAt.UTC()
			order.Lines = []domain.OrderLine{}
			orders = append(orders, order)
			pos = len(orders) - 1
			index[order.ID] = pos
		}
		if !lineID.Valid {
			continue
		}

		line := domain.OrderLine{
			ID:             lineID.String,
			OrderID:        order.ID,
			MenuItemID:     menuItemID.String,
			Qty:            qty.Int32,
			UnitPriceMinor: unitPrice.Int64,
			CreatedAt:      lineCreated.Time.UTC(),
		}
		if itemID.Valid {
			line.MenuItem = &domain.MenuItem{
				ID:          itemID.String,
				Name:        itemName.String,
				Description: itemDesc.String,
				PriceMinor:  itemPrice.Int64,
				Category:    domain.Category(itemCategory.String),
				ImageURL:    itemImage.String,
				Available:   itemAvailable.Bool,
				CreatedAt:   itemCreated.Time.UTC(),
			}
		}
		orders[pos].Lines = append(orders[pos].Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
