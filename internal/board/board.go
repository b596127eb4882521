// Package board — доска кухни/бара: pending-заказы от старых к новым с уровнем срочности.
//
// Локальное состояние никогда не правится по дельтам: любое уведомление об изменении
// orders или order_items приводит к полному перечитыванию pending-набора.
package board

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
)

// ViewName — имя представления в логах и метриках.
const ViewName = "order_board"

// Entry — заказ на доске с вычисленными на момент чтения возрастом и срочностью.
type Entry struct {
	Order      domain.Order
	AgeMinutes int64
	Urgency    Urgency
}

// Options задаёт параметры Board.
type Options struct {
	Logger     *log.Entry
	Metrics    *metrics.BarMetrics
	Thresholds Thresholds
	Now        func() time.Time
}

// Option настраивает Board.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.BarMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithThresholds задаёт пороги срочности.
func WithThresholds(t Thresholds) Option {
	return func(opts *Options) {
		opts.Thresholds = t
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Board хранит локальную копию pending-заказов.
type Board struct {
	repo       domain.OrderRepository
	logger     *log.Entry
	metrics    *metrics.BarMetrics
	thresholds Thresholds
	now        func() time.Time

	mu     sync.RWMutex
	orders []domain.Order
	// заказы, снятые с доски локально: пока запись статуса в полёте, и после её успеха,
	// пока не завершится перечитывание, начатое позже этой записи.
	inFlight map[string]struct{}
	settled  map[string]uint64
	seq      uint64
	// startSeq последнего применённого перечитывания; более ранние ответы отбрасываются.
	applied uint64

	sub *changefeed.Subscription
}

// New создаёт пустую доску. Данные появятся после Start или Reconcile.
func New(repo domain.OrderRepository, options ...Option) *Board {
	opts := Options{
		Thresholds: DefaultThresholds(),
		Now:        time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "order-board")
	}
	if opts.Thresholds.UrgentAfter <= 0 {
		opts.Thresholds.UrgentAfter = DefaultUrgentAfter
	}
	if opts.Thresholds.CriticalAfter <= 0 {
		opts.Thresholds.CriticalAfter = DefaultCriticalAfter
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Board{
		repo:       repo,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		thresholds: opts.Thresholds,
		now:        opts.Now,
		inFlight:   make(map[string]struct{}),
		settled:    make(map[string]uint64),
	}
}

// Start подписывает доску на orders и order_items и выполняет начальную загрузку.
func (b *Board) Start(ctx context.Context, subscriber *changefeed.Subscriber) error {
	sub, err := subscriber.Subscribe(ctx,
		changefeed.TableTopic(ViewName, domain.TableOrders, domain.TableOrderItems),
		nil, b.Reconcile)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()
	return nil
}

// Close отписывает доску. Запись статуса, начатая до Close, не отменяется.
func (b *Board) Close() {
	b.mu.RLock()
	sub := b.sub
	b.mu.RUnlock()
	if sub != nil {
		sub.Close()
	}
}

// Reconcile перечитывает pending-заказы и целиком заменяет содержимое доски.
func (b *Board) Reconcile(ctx context.Context) error {
	b.mu.Lock()
	b.seq++
	startSeq := b.seq
	b.mu.Unlock()

	orders, err := b.repo.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}

	fresh := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.Status == domain.OrderStatusPending {
			fresh = append(fresh, order)
		}
	}
	sortOrders(fresh)

	b.mu.Lock()
	defer b.mu.Unlock()

	if startSeq < b.applied {
		b.logger.WithField("start_seq", startSeq).Debug("stale pending snapshot discarded")
		return nil
	}
	b.applied = startSeq

	for id, settledAt := range b.settled {
		if settledAt < startSeq {
			delete(b.settled, id)
		}
	}
	kept := fresh[:0]
	for _, order := range fresh {
		if _, ok := b.inFlight[order.ID]; ok {
			continue
		}
		if _, ok := b.settled[order.ID]; ok {
			continue
		}
		kept = append(kept, order)
	}
	b.orders = kept
	b.metrics.SetPendingOrders(len(kept))
	return nil
}

// Orders возвращает заказы доски, старые первыми, с возрастом на текущий момент.
func (b *Board) Orders() []Entry {
	now := b.now()

	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]Entry, 0, len(b.orders))
	for _, order := range b.orders {
		age := AgeMinutes(order.CreatedAt, now)
		entries = append(entries, Entry{
			Order:      order,
			AgeMinutes: age,
			Urgency:    b.thresholds.Classify(age),
		})
	}
	return entries
}

// Len возвращает число заказов на доске.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// MarkDelivered сразу убирает заказ с доски и записывает статус delivered.
// При ошибке записи заказ вернётся только со следующей сверкой.
func (b *Board) MarkDelivered(ctx context.Context, orderID string) error {
	return b.finish(ctx, orderID, domain.OrderStatusDelivered)
}

// MarkCanceled работает как MarkDelivered, но со статусом canceled.
func (b *Board) MarkCanceled(ctx context.Context, orderID string) error {
	return b.finish(ctx, orderID, domain.OrderStatusCanceled)
}

func (b *Board) finish(ctx context.Context, orderID string, status domain.OrderStatus) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.ErrOrderIDRequired
	}

	b.mu.Lock()
	b.removeLocked(orderID)
	b.inFlight[orderID] = struct{}{}
	b.metrics.SetPendingOrders(len(b.orders))
	b.mu.Unlock()

	err := b.repo.UpdateOrderStatus(ctx, orderID, status)

	b.mu.Lock()
	delete(b.inFlight, orderID)
	if err == nil || errors.Is(err, domain.ErrInvalidStatusTransition) {
		// заказ уже не pending: в хранилище он терминальный
		b.seq++
		b.settled[orderID] = b.seq
	}
	b.mu.Unlock()

	logger := b.logger.WithFields(log.Fields{
		"order_id": orderID,
		"status":   status,
	})
	if err != nil {
		b.metrics.RecordStatusUpdate(string(status), "error")
		logger.WithError(err).Warn("order status update failed, board will self-correct on next reconciliation")
		return &domain.RemoteWriteError{Op: "update order status", Err: err}
	}

	b.metrics.RecordStatusUpdate(string(status), "ok")
	logger.Info("order removed from board")
	return nil
}

func (b *Board) removeLocked(orderID string) {
	for i, order := range b.orders {
		if order.ID == orderID {
			b.orders = append(b.orders[:i:i], b.orders[i+1:]...)
			return
		}
	}
}

func sortOrders(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}
