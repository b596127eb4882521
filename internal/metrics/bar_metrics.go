package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты отправки заказа для label result.
const (
	SubmitSuccess    = "success"
	SubmitValidation = "validation"
	SubmitHeaderFail = "header_failed"
	SubmitPartial    = "partial"
)

// BarMetrics содержит метрики клиентского ядра: заказы, голоса, сверки.
type BarMetrics struct {
	// Счётчики операций
	submissions        *prometheus.CounterVec
	partialSubmissions prometheus.Counter
	votes              *prometheus.CounterVec
	deliveries         *prometheus.CounterVec

	// Сверки состояния
	reconciliations    *prometheus.CounterVec
	reconcileDuration  *prometheus.HistogramVec
	pendingOrders      prometheus.Gauge
	changeNotification *prometheus.CounterVec

	// WebSocket-лента
	feedClients    prometheus.Gauge
	feedReconnects prometheus.Counter
}

// NewBarMetrics создаёт метрики в DefaultRegisterer.
func NewBarMetrics() *BarMetrics {
	return NewBarMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBarMetricsWithRegisterer создаёт метрики в заданном реестре; повторная регистрация переиспользует коллекторы.
func NewBarMetricsWithRegisterer(registerer prometheus.Registerer) *BarMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BarMetrics{
		submissions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bar_order_submissions_total",
			Help: "Total number of order submissions grouped by result",
		}, []string{"result"}),
		partialSubmissions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bar_order_partial_submissions_total",
			Help: "Orders persisted without their lines; every increment needs operator attention",
		}),
		votes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bar_votes_total",
			Help: "Total number of genre battle votes grouped by choice and result",
		}, []string{"choice", "result"}),
		deliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bar_order_status_updates_total",
			Help: "Total number of order status updates issued from the board",
		}, []string{"status", "result"}),
		reconciliations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bar_reconciliations_total",
			Help: "Total number of view reconciliations grouped by view and result",
		}, []string{"view", "result"}),
		reconcileDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bar_reconcile_duration_seconds",
			Help:    "Duration of refetch-based reconciliations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"view"}),
		pendingOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bar_board_pending_orders",
			Help: "Number of pending orders on the board after the last reconciliation",
		}),
		changeNotification: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bar_change_notifications_total",
			Help: "Change notifications received by subscribers grouped by table",
		}, []string{"table"}),
		feedClients: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bar_feed_clients",
			Help: "Number of connected change feed WebSocket clients",
		}),
		feedReconnects: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bar_feed_reconnects_total",
			Help: "Change feed client reconnects, each followed by a resync",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// Все Record* методы безопасны для nil-получателя: компоненты без метрик просто их не пишут.

// RecordSubmission увеличивает счётчик отправок заказа с результатом.
func (m *BarMetrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
	if result == SubmitPartial {
		m.partialSubmissions.Inc()
	}
}

// RecordVote фиксирует голос и его исход.
func (m *BarMetrics) RecordVote(choice, result string) {
	if m == nil {
		return
	}
	m.votes.WithLabelValues(choice, result).Inc()
}

// RecordStatusUpdate фиксирует смену статуса заказа с доски.
func (m *BarMetrics) RecordStatusUpdate(status, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status, result).Inc()
}

// RecordReconcile фиксирует сверку представления и её длительность.
func (m *BarMetrics) RecordReconcile(view string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reconciliations.WithLabelValues(view, result).Inc()
	m.reconcileDuration.WithLabelValues(view).Observe(duration.Seconds())
}

// SetPendingOrders выставляет размер доски заказов.
func (m *BarMetrics) SetPendingOrders(n int) {
	if m == nil {
		return
	}
	m.pendingOrders.Set(float64(n))
}

// RecordChangeNotification увеличивает счётчик уведомлений по таблице.
func (m *BarMetrics) RecordChangeNotification(table string) {
	if m == nil {
		return
	}
	m.changeNotification.WithLabelValues(table).Inc()
}

// AddFeedClients меняет число подключённых клиентов ленты на delta.
func (m *BarMetrics) AddFeedClients(delta int) {
	if m == nil {
		return
	}
	m.feedClients.Add(float64(delta))
}

// RecordFeedReconnect фиксирует переподключение клиента ленты.
func (m *BarMetrics) RecordFeedReconnect() {
	if m == nil {
		return
	}
	m.feedReconnects.Inc()
}

// SubmissionCounter возвращает счётчик отправок с заданным результатом.
func (m *BarMetrics) SubmissionCounter(result string) (prometheus.Counter, error) {
	return m.submissions.GetMetricWithLabelValues(result)
}

// VoteCounter возвращает счётчик голосов для варианта и результата.
func (m *BarMetrics) VoteCounter(choice, result string) (prometheus.Counter, error) {
	return m.votes.GetMetricWithLabelValues(choice, result)
}
