// Package ordering превращает корзину и номер столика в заказ в хранилище.
//
// Хранилище не даёт транзакций между таблицами, поэтому заказ пишется двумя
// последовательными записями: заголовок, затем позиции одним батчем. Если упала
// вторая запись, заголовок остаётся без позиций, и это отдельный вид ошибки
// (domain.PartialSubmissionError). Компенсирующее удаление не выполняется.
package ordering

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/cart"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
)

// Result — успешная отправка заказа.
type Result struct {
	OrderID    string
	TotalMinor int64
}

// Options задаёт параметры Pipeline.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.BarMetrics
	NewID   func() string
	Now     func() time.Time
}

// Option настраивает Pipeline.
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

// WithIDGenerator подменяет генератор идентификаторов (по умолчанию uuid v4, 128 бит).
func WithIDGenerator(newID func() string) Option {
	return func(opts *Options) {
		opts.NewID = newID
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Pipeline отправляет заказы в хранилище.
type Pipeline struct {
	orders  domain.OrderWriter
	logger  *log.Entry
	metrics *metrics.BarMetrics
	newID   func() string
	now     func() time.Time
}

// NewPipeline создаёт конвейер отправки поверх примитивов записи заказа.
func NewPipeline(orders domain.OrderWriter, options ...Option) *Pipeline {
	opts := Options{
		NewID: uuid.NewString,
		Now:   time.Now,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "order-pipeline")
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		orders:  orders,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		newID:   opts.NewID,
		now:     opts.Now,
	}
}

// Submit записывает заказ. Корзину вызывающий очищает только при err == nil.
//
// Ошибки:
//   - *domain.ValidationError: пустая корзина или неверный номер столика, записей не было;
//   - *domain.RemoteWriteError: не записан заголовок, заказа не существует;
//   - *domain.PartialSubmissionError: заголовок записан без позиций.
//
// Повторять Submit после ошибки безопасно только потому, что каждый вызов генерирует новый id.
func (p *Pipeline) Submit(ctx context.Context, lines []cart.Line, tableNumber string) (Result, error) {
	table := strings.TrimSpace(tableNumber)
	if err := validate(lines, table); err != nil {
		p.metrics.RecordSubmission(metrics.SubmitValidation)
		return Result{}, err
	}

	orderID := p.newID()
	now := p.now().UTC()

	var total int64
	orderLines := make([]domain.OrderLine, 0, len(lines))
	for _, line := range lines {
		total += line.ExtensionMinor()
		orderLines = append(orderLines, domain.OrderLine{
			ID:             p.newID(),
			OrderID:        orderID,
			MenuItemID:     line.Item.ID,
			Qty:            line.Qty,
			UnitPriceMinor: line.Item.PriceMinor,
			CreatedAt:      now,
		})
	}

	logger := p.logger.WithFields(log.Fields{
		"order_id":    orderID,
		"table":       table,
		"total_minor": total,
	})

	header := domain.Order{
		ID:          orderID,
		TableNumber: table,
		TotalMinor:  total,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
	}
	if err := p.orders.InsertOrder(ctx, header); err != nil {
		logger.WithError(err).Warn("order header rejected by store")
		p.metrics.RecordSubmission(metrics.SubmitHeaderFail)
		return Result{}, &domain.RemoteWriteError{Op: "insert order", Err: err}
	}

	if err := p.orders.InsertOrderLines(ctx, orderLines); err != nil {
		logger.WithError(err).WithField("lines", len(orderLines)).
			Error("order header persisted without lines, manual reconciliation required")
		p.metrics.RecordSubmission(metrics.SubmitPartial)
		return Result{}, &domain.PartialSubmissionError{OrderID: orderID, TotalMinor: total, Err: err}
	}

	logger.WithField("lines", len(orderLines)).Info("order submitted")
	p.metrics.RecordSubmission(metrics.SubmitSuccess)
	return Result{OrderID: orderID, TotalMinor: total}, nil
}

func validate(lines []cart.Line, table string) error {
	if len(lines) == 0 {
		return &domain.ValidationError{Field: "cart", Reason: domain.ErrCartEmpty.Error()}
	}
	for _, line := range lines {
		if line.Qty <= 0 {
			return &domain.ValidationError{Field: "cart", Reason: domain.ErrItemQtyInvalid.Error()}
		}
		if line.Item.PriceMinor < 0 {
			return &domain.ValidationError{Field: "cart", Reason: domain.ErrItemPriceInvalid.Error()}
		}
	}
	return domain.ValidateTableNumber(table)
}

// SubmitCart отправляет содержимое корзины и очищает её только при полном успехе.
// При любой ошибке корзина сохраняется для повторной отправки.
func (p *Pipeline) SubmitCart(ctx context.Context, c *cart.Cart, tableNumber string) (Result, error) {
	res, err := p.Submit(ctx, c.Lines(), tableNumber)
	if err != nil {
		return Result{}, err
	}
	c.Clear()
	return res, nil
}
