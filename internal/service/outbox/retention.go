package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultRetentionInterval = 10 * time.Minute
	defaultRetention         = 24 * time.Hour
)

var (
	outboxPurgeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bar_outbox_purge_runs_total",
		Help: "Total number of outbox retention runs grouped by result.",
	}, []string{"result"})
	outboxPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bar_outbox_purged_total",
		Help: "Total number of delivered outbox records removed by retention.",
	})
)

// FinishedPurger удаляет завершённые (sent и failed) записи outbox.
type FinishedPurger interface {
	PurgeFinished(ctx context.Context, olderThan time.Time) (int64, error)
}

// RetentionOption настраивает RetentionWorker.
type RetentionOption func(*RetentionWorker)

// WithRetentionLogger задаёт logger.
func WithRetentionLogger(logger *log.Entry) RetentionOption {
	return func(w *RetentionWorker) {
		w.logger = logger
	}
}

// WithRetentionInterval задаёт интервал между запусками очистки.
func WithRetentionInterval(interval time.Duration) RetentionOption {
	return func(w *RetentionWorker) {
		w.interval = interval
	}
}

// WithRetention задаёт, сколько хранить завершённые записи.
func WithRetention(retention time.Duration) RetentionOption {
	return func(w *RetentionWorker) {
		w.retention = retention
	}
}

// RetentionWorker периодически чистит завершённые записи outbox, чтобы таблица не росла бесконечно.
type RetentionWorker struct {
	purger    FinishedPurger
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewRetentionWorker создаёт воркер очистки.
func NewRetentionWorker(purger FinishedPurger, options ...RetentionOption) *RetentionWorker {
	w := &RetentionWorker{
		purger:    purger,
		interval:  defaultRetentionInterval,
		retention: defaultRetention,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-retention")
	}
	if w.interval <= 0 {
		w.interval = defaultRetentionInterval
	}
	if w.retention <= 0 {
		w.retention = defaultRetention
	}
	return w
}

// Run чистит outbox сразу и затем раз в interval до отмены ctx.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.purger == nil {
		w.logger.Warn("outbox retention is disabled: purger is nil")
		return
	}

	w.PurgeOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce удаляет записи, завершённые раньше now-retention.
func (w *RetentionWorker) PurgeOnce(ctx context.Context) int64 {
	purged, err := w.purger.PurgeFinished(ctx, w.now().Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		outboxPurgeRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("outbox retention run failed")
		return 0
	}

	outboxPurgeRunsTotal.WithLabelValues("ok").Inc()
	if purged > 0 {
		outboxPurgedTotal.Add(float64(purged))
		w.logger.WithField("purged", purged).Info("outbox retention completed")
	}
	return purged
}
