package changefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
)

// Topic — набор таблиц и типов событий, на которые подписывается потребитель.
type Topic struct {
	Name   string
	Tables []domain.Table
	Events domain.EventFilter
}

// TableTopic создаёт тему по именам таблиц со всеми типами событий.
func TableTopic(name string, tables ...domain.Table) Topic {
	return Topic{Name: name, Tables: tables}
}

// Predicate дополнительно фильтрует события (например, по id строки).
type Predicate func(ev domain.ChangeEvent) bool

// ChangeHandler перечитывает срез данных и целиком заменяет локальное состояние.
type ChangeHandler func(ctx context.Context) error

// Subscriber выдаёт подписки поверх транспорта.
type Subscriber struct {
	transport Transport
	logger    *log.Entry
	metrics   *metrics.BarMetrics
}

// NewSubscriber создаёт Subscriber.
func NewSubscriber(transport Transport, logger *log.Entry, m *metrics.BarMetrics) *Subscriber {
	if logger == nil {
		logger = log.WithField("component", "changefeed")
	}
	return &Subscriber{transport: transport, logger: logger, metrics: m}
}

// Subscribe подключается к транспорту, выполняет начальную загрузку onChange и
// дальше вызывает onChange на каждое подходящее уведомление.
//
// Все вызовы onChange одной подписки последовательны. Уведомления, пришедшие во время
// сверки, схлопываются в одну следующую сверку: перечитывание идемпотентно, поэтому
// дубликаты и переставленные события на результат не влияют.
//
// Если начальная загрузка не удалась, подписка закрывается и ошибка возвращается.
func (s *Subscriber) Subscribe(ctx context.Context, topic Topic, match Predicate, onChange ChangeHandler) (*Subscription, error) {
	if onChange == nil {
		return nil, fmt.Errorf("changefeed: onChange is required")
	}
	if len(topic.Tables) == 0 {
		return nil, fmt.Errorf("changefeed: topic %q has no tables", topic.Name)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		topic:    topic,
		match:    match,
		onChange: onChange,
		kick:     make(chan struct{}, 1),
		ctx:      subCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   s.logger.WithField("topic", topic.Name),
		metrics:  s.metrics,
	}

	// Сначала подписка, потом загрузка: событие между ними не потеряется, а лишь вызовет ещё одну сверку.
	for _, table := range topic.Tables {
		handle, err := s.transport.Subscribe(table, topic.Events, sub.notify)
		if err != nil {
			sub.closeHandles()
			cancel()
			close(sub.done)
			return nil, fmt.Errorf("subscribe to %s: %w", table, err)
		}
		sub.mu.Lock()
		sub.handles = append(sub.handles, handle)
		sub.mu.Unlock()
	}

	if err := sub.reconcile(ctx); err != nil {
		sub.Close()
		close(sub.done)
		return nil, fmt.Errorf("initial fetch for %s: %w", topic.Name, err)
	}

	go sub.loop()
	return sub, nil
}

// Subscription — активная подписка. Close безопасен при повторном вызове и из onChange.
type Subscription struct {
	topic    Topic
	match    Predicate
	onChange ChangeHandler

	mu      sync.Mutex
	handles []Handle

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	logger  *log.Entry
	metrics *metrics.BarMetrics
}

func (s *Subscription) notify(ev domain.ChangeEvent) {
	if s.ctx.Err() != nil {
		return
	}
	if !s.topic.Events.Match(ev.Type) {
		return
	}
	if ev.Type != domain.ChangeResync && s.match != nil && !s.match(ev) {
		return
	}
	s.metrics.RecordChangeNotification(string(ev.Table))

	select {
	case s.kick <- struct{}{}:
	default:
		// сверка уже запланирована
	}
}

func (s *Subscription) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.kick:
			if s.ctx.Err() != nil {
				return
			}
			if err := s.reconcile(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.WithError(err).Warn("reconciliation failed, waiting for next change")
			}
		}
	}
}

func (s *Subscription) reconcile(ctx context.Context) error {
	start := time.Now()
	err := s.onChange(ctx)
	s.metrics.RecordReconcile(s.topic.Name, time.Since(start), err)
	return err
}

// Close прекращает доставку. Уже идущая сверка получает отменённый контекст; запись,
// начатая вызывающим кодом до Close, не отменяется.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.closeHandles()
	})
}

// Done закрывается, когда цикл доставки завершился.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) closeHandles() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}
