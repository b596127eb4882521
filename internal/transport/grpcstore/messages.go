package grpcstore

import (
	"time"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

// Сообщения сервиса повторяют колонки таблиц хранилища.

type menuItemMessage struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url,omitempty"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

type orderLineMessage struct {
	ID                 string           `json:"id"`
	OrderID            string           `json:"order_id"`
	MenuItemID         string           `json:"menu_item_id"`
	Quantity           int32            `json:"quantity"`
	PriceAtTimeOfOrder int64            `json:"price_at_time_of_order"`
	CreatedAt          time.Time        `json:"created_at"`
	MenuItem           *menuItemMessage `json:"menu_item,omitempty"`
}

type orderMessage struct {
	ID          string             `json:"id"`
	TableNumber string             `json:"table_number"`
	Status      string             `json:"status"`
	TotalPrice  int64              `json:"total_price"`
	CreatedAt   time.Time          `json:"created_at"`
	Lines       []orderLineMessage `json:"order_items,omitempty"`
}

type battleMessage struct {
	ID         string    `json:"id"`
	GenreAName string    `json:"genre_a_name"`
	GenreBName string    `json:"genre_b_name"`
	VotesA     int64     `json:"votes_a"`
	VotesB     int64     `json:"votes_b"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type promoMessage struct {
	ID          string    `json:"id"`
	MessageText string    `json:"message_text"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type emptyMessage struct{}

type menuItemsResponse struct {
	Items []menuItemMessage `json:"items"`
}

type saveMenuItemRequest struct {
	Item menuItemMessage `json:"item"`
}

type insertOrderRequest struct {
	Order orderMessage `json:"order"`
}

type insertOrderLinesRequest struct {
	Lines []orderLineMessage `json:"lines"`
}

type updateOrderStatusRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type getOrderRequest struct {
	OrderID string `json:"order_id"`
}

type orderResponse struct {
	Order orderMessage `json:"order"`
}

type ordersResponse struct {
	Orders []orderMessage `json:"orders"`
}

type battlesResponse struct {
	Battles []battleMessage `json:"battles"`
}

type incrementVoteRequest struct {
	BattleID string `json:"battle_id"`
	Choice   string `json:"choice"`
}

type createBattleRequest struct {
	Battle battleMessage `json:"battle"`
}

type promosResponse struct {
	Promos []promoMessage `json:"promos"`
}

type savePromoRequest struct {
	Promo promoMessage `json:"promo"`
}

type deletePromoRequest struct {
	PromoID string `json:"promo_id"`
}

func toMenuItemMessage(item domain.MenuItem) menuItemMessage {
	return menuItemMessage{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.PriceMinor,
		Category:    string(item.Category),
		ImageURL:    item.ImageURL,
		IsAvailable: item.Available,
		CreatedAt:   item.CreatedAt,
	}
}

func (m menuItemMessage) toDomain() domain.MenuItem {
	return domain.MenuItem{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		PriceMinor:  m.Price,
		Category:    domain.Category(m.Category),
		ImageURL:    m.ImageURL,
		Available:   m.IsAvailable,
		CreatedAt:   m.CreatedAt,
	}
}

func toOrderLineMessage(line domain.OrderLine) orderLineMessage {
	msg := orderLineMessage{
		ID:                 line.ID,
		OrderID:            line.OrderID,
		MenuItemID:         line.MenuItemID,
		Quantity:           line.Qty,
		PriceAtTimeOfOrder: line.UnitPriceMinor,
		CreatedAt:          line.CreatedAt,
	}
	if line.MenuItem != nil {
		item := toMenuItemMessage(*line.MenuItem)
		msg.MenuItem = &item
	}
	return msg
}

func (m orderLineMessage) toDomain() domain.OrderLine {
	line := domain.OrderLine{
		ID:             m.ID,
		OrderID:        m.OrderID,
		MenuItemID:     m.MenuItemID,
		Qty:            m.Quantity,
		UnitPriceMinor: m.PriceAtTimeOfOrder,
		CreatedAt:      m.CreatedAt,
	}
	if m.MenuItem != nil {
		item := m.MenuItem.toDomain()
		line.MenuItem = &item
	}
	return line
}

func toOrderMessage(order domain.Order) orderMessage {
	msg := orderMessage{
		ID:          order.ID,
		TableNumber: order.TableNumber,
		Status:      string(order.Status),
		TotalPrice:  order.TotalMinor,
		CreatedAt:   order.CreatedAt,
	}
	for _, line := range order.Lines {
		msg.Lines = append(msg.Lines, toOrderLineMessage(line))
	}
	return msg
}

func (m orderMessage) toDomain() domain.Order {
	order := domain.Order{
		ID:          m.ID,
		TableNumber: m.TableNumber,
		Status:      domain.OrderStatus(m.Status),
		TotalMinor:  m.TotalPrice,
		CreatedAt:   m.CreatedAt,
		Lines:       make([]domain.OrderLine, 0, len(m.Lines)),
	}
	for _, line := range m.Lines {
		order.Lines = append(order.Lines, line.toDomain())
	}
	return order
}

func toBattleMessage(b domain.GenreBattle) battleMessage {
	return battleMessage{
		ID:         b.ID,
		GenreAName: b.GenreA,
		GenreBName: b.GenreB,
		VotesA:     b.VotesA,
		VotesB:     b.VotesB,
		IsActive:   b.Active,
		CreatedAt:  b.CreatedAt,
	}
}

func (m battleMessage) toDomain() domain.GenreBattle {
	return domain.GenreBattle{
		ID:        m.ID,
		GenreA:    m.GenreAName,
		GenreB:    m.GenreBName,
		VotesA:    m.VotesA,
		VotesB:    m.VotesB,
		Active:    m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}

func toPromoMessage(p domain.FlashPromo) promoMessage {
	return promoMessage{
		ID:          p.ID,
		MessageText: p.Message,
		IsActive:    p.Active,
		CreatedAt:   p.CreatedAt,
	}
}

func (m promoMessage) toDomain() domain.FlashPromo {
	return domain.FlashPromo{
		ID:        m.ID,
		Message:   m.MessageText,
		Active:    m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}
