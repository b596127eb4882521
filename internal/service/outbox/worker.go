package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 2 * time.Second
	maxDrainRounds        = 10
)

// Результаты доставки в метрике bar_outbox_deliveries_total.
const (
	resultDelivered  = "delivered"
	resultRetried    = "retried"
	resultExhausted  = "exhausted"
	resultDeadLetter = "dead_letter"
	resultDLQFailed  = "dead_letter_failed"
)

var (
	outboxDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bar_outbox_deliveries_total",
		Help: "Change record delivery outcomes grouped by table and result.",
	}, []string{"table", "result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bar_outbox_pending_records",
		Help: "Change records waiting for delivery.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bar_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest undelivered change record.",
	})
)

// WorkerOptions задаёт параметры доставки.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

// WithDLQPublisher задаёт получателя записей, доставка которых не удалась.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток доставки одной записи.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; далее она удваивается до maxRetryDelay.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

func (o *WorkerOptions) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryBaseDelay < 0 {
		o.RetryBaseDelay = 0
	}
	if o.Logger == nil {
		o.Logger = log.WithField("component", "outbox-worker")
	}
}

// Worker доставляет записи об изменениях строк из outbox в ленту изменений (Hub или Kafka).
// Запись помечается отправленной только после успешной публикации, поэтому доставка at-least-once.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      WorkerOptions
	wake      chan struct{}
}

// NewWorker создаёт Worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}
	opts.normalize()

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		wake:      make(chan struct{}, 1),
	}
}

// Wake просит внеочередной проход. Повторные вызовы до прохода схлопываются.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run опрашивает outbox по таймеру и по Wake до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.opts.Logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// drain повторяет проходы, пока батчи приходят полными, но не больше maxDrainRounds раз подряд.
func (w *Worker) drain(ctx context.Context) {
	for round := 0; round < maxDrainRounds && ctx.Err() == nil; round++ {
		if n := w.ProcessOnce(ctx); n < w.opts.BatchSize {
			return
		}
	}
}

// ProcessOnce обрабатывает один батч и возвращает число взятых записей.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.refreshBacklogMetrics()

	batch, err := w.repo.PullPending(w.opts.BatchSize)
	if err != nil {
		w.opts.Logger.WithError(err).Warn("failed to pull pending change records")
		return 0
	}

	for _, record := range batch {
		if ctx.Err() != nil {
			break
		}
		w.deliver(ctx, record)
	}
	return len(batch)
}

func (w *Worker) deliver(ctx context.Context, record domain.OutboxMessage) {
	entry := w.opts.Logger.WithFields(log.Fields{
		"outbox_id": record.ID,
		"table":     record.AggregateType,
		"row_id":    record.AggregateID,
		"change":    record.EventType,
	})

	err := w.publishWithRetry(ctx, record)
	if err == nil {
		if markErr := w.repo.MarkSent(record.ID); markErr != nil {
			entry.WithError(markErr).Warn("failed to mark change record as sent")
		}
		return
	}
	if ctx.Err() != nil {
		// Запись останется pending и уйдёт после рестарта.
		return
	}

	entry.WithError(err).Error("change record delivery failed")
	outboxDeliveries.WithLabelValues(record.AggregateType, resultExhausted).Inc()

	if w.opts.DLQPublisher != nil {
		if dlqErr := w.publishDeadLetter(record, err); dlqErr != nil {
			entry.WithError(dlqErr).Warn("failed to publish change record to DLQ")
			outboxDeliveries.WithLabelValues(record.AggregateType, resultDLQFailed).Inc()
		} else {
			outboxDeliveries.WithLabelValues(record.AggregateType, resultDeadLetter).Inc()
		}
	}
	if markErr := w.repo.MarkFailed(record.ID); markErr != nil {
		entry.WithError(markErr).Warn("failed to mark change record as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, record domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = w.publisher.Publish(record)
		if lastErr == nil {
			outboxDeliveries.WithLabelValues(record.AggregateType, resultDelivered).Inc()
			return nil
		}
		if attempt >= w.opts.MaxAttempts {
			return fmt.Errorf("deliver change record after %d attempts: %w", attempt, lastErr)
		}
		outboxDeliveries.WithLabelValues(record.AggregateType, resultRetried).Inc()

		delay := backoffDelay(w.opts.RetryBaseDelay, attempt)
		if delay == 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoffDelay возвращает паузу после попытки attempt: base, 2*base, 4*base... не больше maxRetryDelay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func (w *Worker) refreshBacklogMetrics() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.opts.Logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}
	outboxOldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

// deadLetter — тело сообщения в DLQ: исходная запись и причина отказа.
type deadLetter struct {
	OutboxID     string          `json:"outbox_id"`
	Table        string          `json:"table"`
	RowID        string          `json:"row_id"`
	Change       string          `json:"change"`
	Rows         json.RawMessage `json:"rows,omitempty"`
	Error        string          `json:"error"`
	RecordedAt   time.Time       `json:"recorded_at"`
	DeadLetterAt time.Time       `json:"dead_letter_at"`
}

func (w *Worker) publishDeadLetter(record domain.OutboxMessage, cause error) error {
	letter := deadLetter{
		OutboxID:     record.ID,
		Table:        record.AggregateType,
		RowID:        record.AggregateID,
		Change:       record.EventType,
		Error:        cause.Error(),
		RecordedAt:   record.CreatedAt,
		DeadLetterAt: time.Now().UTC(),
	}
	if json.Valid(record.Payload) {
		letter.Rows = record.Payload
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dlq := record
	dlq.Payload = payload
	if err := w.opts.DLQPublisher.Publish(dlq); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}
