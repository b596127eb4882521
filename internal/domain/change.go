package domain

import (
	"encoding/json"
	"time"
)

// Table — имя таблицы хранилища, на изменения которой можно подписаться.
type Table string

const (
	TableMenuItems    Table = "menu_items"
	TableOrders       Table = "orders"
	TableOrderItems   Table = "order_items"
	TableGenreBattles Table = "genre_battles"
	TableFlashPromos  Table = "flash_promos"
)

// Tables возвращает все таблицы, изменения которых публикуются.
func Tables() []Table {
	return []Table{TableMenuItems, TableOrders, TableOrderItems, TableGenreBattles, TableFlashPromos}
}

// Valid проверяет, что таблица публикует изменения.
func (t Table) Valid() bool {
	for _, known := range Tables() {
		if t == known {
			return true
		}
	}
	return false
}

// ChangeType — вид изменения строки.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
	// ChangeResync отправляется транспортом после переподключения: события могли потеряться.
	ChangeResync ChangeType = "resync"
)

// ChangeEvent — уведомление об изменении строки. Доставляется at-least-once, без порядка между таблицами.
type ChangeEvent struct {
	ID         string          `json:"id"`
	Table      Table           `json:"table"`
	Type       ChangeType      `json:"type"`
	RowID      string          `json:"row_id,omitempty"`
	NewRow     json.RawMessage `json:"new_row,omitempty"`
	OldRow     json.RawMessage `json:"old_row,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventFilter ограничивает типы событий; пустой фильтр пропускает все.
type EventFilter []ChangeType

// Match проверяет тип события. Resync проходит любой фильтр.
func (f EventFilter) Match(t ChangeType) bool {
	if len(f) == 0 || t == ChangeResync {
		return true
	}
	for _, allowed := range f {
		if allowed == t {
			return true
		}
	}
	return false
}

// ChangeEventFromOutbox восстанавливает событие из записи outbox.
func ChangeEventFromOutbox(msg OutboxMessage) ChangeEvent {
	ev := ChangeEvent{
		ID:         msg.ID,
		Table:      Table(msg.AggregateType),
		Type:       ChangeType(msg.EventType),
		RowID:      msg.AggregateID,
		OccurredAt: msg.CreatedAt,
	}
	if len(msg.Payload) > 0 {
		var rows struct {
			New json.RawMessage `json:"new"`
			Old json.RawMessage `json:"old"`
		}
		if err := json.Unmarshal(msg.Payload, &rows); err == nil {
			ev.NewRow = rows.New
			ev.OldRow = rows.Old
		}
	}
	return ev
}
