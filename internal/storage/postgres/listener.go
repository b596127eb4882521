package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// NotifyChannel — канал pg_notify, в который пишет триггер bar_record_change.
const NotifyChannel = "bar_outbox"

const (
	listenerMinBackoff = 200 * time.Millisecond
	listenerMaxBackoff = 10 * time.Second
)

// Listener держит отдельное соединение с LISTEN и вызывает onNotify на каждое уведомление.
// Уведомления только ускоряют outbox worker, потеря соединения не теряет изменений.
type Listener struct {
	dsn      string
	channel  string
	onNotify func(payload string)
	logger   *log.Entry
}

// NewListener создаёт слушателя канала NotifyChannel.
func NewListener(dsn string, onNotify func(payload string), logger *log.Entry) *Listener {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if onNotify == nil {
		onNotify = func(string) {}
	}
	return &Listener{
		dsn:      dsn,
		channel:  NotifyChannel,
		onNotify: onNotify,
		logger:   logger.WithField("component", "pg-listener"),
	}
}

// Run слушает канал до отмены контекста, переподключаясь с экспоненциальной задержкой.
func (l *Listener) Run(ctx context.Context) {
	backoff := listenerMinBackoff
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.WithError(err).WithField("retry_in", backoff).Warn("postgres listener disconnected")

		// Пропущенные уведомления компенсирует поллинг worker, но после переподключения будим его сразу.
		l.onNotify("")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.WithField("channel", l.channel).Info("postgres listener subscribed")

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.onNotify(notification.Payload)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > listenerMaxBackoff {
		return listenerMaxBackoff
	}
	return next
}
