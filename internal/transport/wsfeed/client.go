package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
)

const (
	DefaultMinBackoff = 200 * time.Millisecond
	DefaultMaxBackoff = 10 * time.Second
)

// Options задаёт параметры клиентского транспорта.
type Options struct {
	Logger     *log.Entry
	Metrics    *metrics.BarMetrics
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Option настраивает Transport.
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

// WithDialer подменяет websocket.Dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(opts *Options) {
		opts.Dialer = d
	}
}

// WithBackoff задаёт границы экспоненциальной задержки переподключения.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(opts *Options) {
		opts.MinBackoff = minDelay
		opts.MaxBackoff = maxDelay
	}
}

// Transport — changefeed.Transport поверх удалённой ленты /feed.
//
// События раздаются локальным подписчикам через собственный Hub. После каждого
// подключения всем подписчикам отправляется resync: события, пришедшие пока
// соединения не было, исправляются перечитыванием.
type Transport struct {
	url        string
	hub        *changefeed.Hub
	dialer     *websocket.Dialer
	logger     *log.Entry
	metrics    *metrics.BarMetrics
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewTransport создаёт транспорт; подключение начинается в Run.
func NewTransport(url string, options ...Option) *Transport {
	opts := Options{
		Dialer:     websocket.DefaultDialer,
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "feed-client")
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}

	return &Transport{
		url:        url,
		hub:        changefeed.NewHub(),
		dialer:     opts.Dialer,
		logger:     opts.Logger.WithField("url", url),
		metrics:    opts.Metrics,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
	}
}

// Subscribe регистрирует локального получателя событий таблицы.
func (t *Transport) Subscribe(table domain.Table, filter domain.EventFilter, deliver changefeed.DeliverFunc) (changefeed.Handle, error) {
	return t.hub.Subscribe(table, filter, deliver)
}

// Run держит подключение до отмены контекста и возвращает ctx.Err().
func (t *Transport) Run(ctx context.Context) error {
	backoff := t.minBackoff
	connected := false

	for {
		conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.WithError(err).WithField("retry_in", backoff).Warn("feed dial failed")
			if !sleepContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff = t.next(backoff)
			continue
		}

		if connected {
			t.metrics.RecordFeedReconnect()
			t.logger.Info("feed reconnected, resyncing subscribers")
		}
		connected = true
		backoff = t.minBackoff

		t.hub.Dispatch(domain.ChangeEvent{Type: domain.ChangeResync, OccurredAt: time.Now().UTC()})

		err = t.consume(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.logger.WithError(err).WithField("retry_in", backoff).Warn("feed connection lost")
		if !sleepContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = t.next(backoff)
	}
}

func (t *Transport) consume(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			_ = conn.Close()
		case <-stop:
			_ = conn.Close()
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev domain.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.logger.WithError(err).Warn("skipping malformed feed message")
			continue
		}
		t.hub.Dispatch(ev)
	}
}

func (t *Transport) next(current time.Duration) time.Duration {
	next := current * 2
	if next > t.maxBackoff {
		return t.maxBackoff
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var _ changefeed.Transport = (*Transport)(nil)
