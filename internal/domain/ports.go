package domain

import (
	"context"
	"time"
)

// CatalogRepository читает доступные позиции меню.
type CatalogRepository interface {
	// ListAvailable возвращает только позиции с Available=true.
	ListAvailable(ctx context.Context) ([]MenuItem, error)
}

// MenuRepository используется внешним каталогом и сидированием.
type MenuRepository interface {
	CatalogRepository
	SaveMenuItem(ctx context.Context, item MenuItem) error
}

// OrderWriter — примитивы записи заказа. Атомарности между вызовами нет.
type OrderWriter interface {
	// InsertOrder записывает только заголовок заказа.
	InsertOrder(ctx context.Context, order Order) error
	// InsertOrderLines записывает позиции одним батчем.
	InsertOrderLines(ctx context.Context, lines []OrderLine) error
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	OrderWriter
	// UpdateOrderStatus меняет статус; из delivered/canceled переходов нет.
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) error
	// ListPending возвращает pending-заказы с позициями, старые первыми.
	ListPending(ctx context.Context) ([]Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
}

// BattleRepository хранит битвы жанров.
type BattleRepository interface {
	ListActiveBattles(ctx context.Context) ([]GenreBattle, error)
	// IncrementVote атомарно увеличивает счётчик на стороне хранилища.
	IncrementVote(ctx context.Context, battleID string, choice Choice) error
	CreateBattle(ctx context.Context, battle GenreBattle) error
}

// PromoRepository хранит промо-сообщения.
type PromoRepository interface {
	ListActivePromos(ctx context.Context) ([]FlashPromo, error)
	// SavePromo вставляет или обновляет промо по ID.
	SavePromo(ctx context.Context, promo FlashPromo) error
	DeletePromo(ctx context.Context, id string) error
}

// OutboxPublisher доставляет change-запись подписчикам: в локальный Hub или в Kafka.
// Повторная доставка допустима, подписчики всё равно перечитывают данные.
type OutboxPublisher interface {
	Publish(record OutboxMessage) error
}

// OutboxRepository — журнал change-записей, который разбирает outbox worker.
// MarkSent и MarkFailed завершают только pending-запись, иначе ErrOutboxPublish.
type OutboxRepository interface {
	Enqueue(record OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit старейших pending-записей; limit <= 0 означает значение по умолчанию.
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage — change-запись журнала.
// AggregateType хранит таблицу, AggregateID id строки, EventType вид изменения,
// Payload строки до и после в JSON.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats — размер backlog и время старейшей pending-записи.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
