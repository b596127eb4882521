package memory

import (
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// Строки в change-записях повторяют колонки таблиц Postgres, чтобы подписчики
// получали одинаковый JSON от обоих хранилищ.

type menuItemRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url,omitempty"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

type orderRow struct {
	ID          string    `json:"id"`
	TableNumber string    `json:"table_number"`
	Status      string    `json:"status"`
	TotalPrice  int64     `json:"total_price"`
	CreatedAt   time.Time `json:"created_at"`
}

type orderItemRow struct {
	ID                 string    `json:"id"`
	OrderID            string    `json:"order_id"`
	MenuItemID         string    `json:"menu_item_id"`
	Quantity           int32     `json:"quantity"`
	PriceAtTimeOfOrder int64     `json:"price_at_time_of_order"`
	CreatedAt          time.Time `json:"created_at"`
}

type genreBattleRow struct {
	ID         string    `json:"id"`
	GenreAName string    `json:"genre_a_name"`
	GenreBName string    `json:"genre_b_name"`
	VotesA     int64     `json:"votes_a"`
	VotesB     int64     `json:"votes_b"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type flashPromoRow struct {
	ID          string    `json:"id"`
	MessageText string    `json:"message_text"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMenuItemRow(m domain.MenuItem) menuItemRow {
	return menuItemRow{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.PriceMinor,
		Category:    string(m.Category),
		ImageURL:    m.ImageURL,
		IsAvailable: m.Available,
		CreatedAt:   m.CreatedAt,
	}
}

func toOrderRow(o domain.Order) orderRow {
	return orderRow{
		ID:          o.ID,
		TableNumber: o.TableNumber,
		Status:      string(o.Status),
		TotalPrice:  o.TotalMinor,
		CreatedAt:   o.CreatedAt,
	}
}

func toOrderItemRow(l domain.OrderLine) orderItemRow {
	return orderItemRow{
		ID:                 l.ID,
		OrderID:            l.OrderID,
		MenuItemID:         l.MenuItemID,
		Quantity:           l.Qty,
		PriceAtTimeOfOrder: l.UnitPriceMinor,
		CreatedAt:          l.CreatedAt,
	}
}

func toGenreBattleRow(b domain.GenreBattle) genreBattleRow {
	return genreBattleRow{
		ID:         b.ID,
		GenreAName: b.GenreA,
		GenreBName: b.GenreB,
		VotesA:     b.VotesA,
		VotesB:     b.VotesB,
		IsActive:   b.Active,
		CreatedAt:  b.CreatedAt,
	}
}

func toFlashPromoRow(p domain.FlashPromo) flashPromoRow {
	return flashPromoRow{
		ID:          p.ID,
		MessageText: p.Message,
		IsActive:    p.Active,
		CreatedAt:   p.CreatedAt,
	}
}
