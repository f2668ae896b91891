package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы обработки сообщения.
const (
	OutcomeAck     = "ack"
	OutcomeRequeue = "requeue"
	OutcomeReject  = "reject"
)

// Результаты публикации алерта.
const (
	AlertPublished = "published"
	AlertFailed    = "failed"
)

// Metrics — метрики worker'а.
//
// Все методы безопасны для nil-получателя: компоненты без метрик
// просто ничего не пишут.
type Metrics struct {
	messages        *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	dbRestarts      *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	running         prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики.
// reg == nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_worker_messages_total",
			Help: "Messages processed by consumer loops, by queue and outcome",
		}, []string{"queue", "outcome"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_worker_handler_duration_seconds",
			Help:    "Task handler duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "task"}),
		dbRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_worker_database_restarts_total",
			Help: "Database pool restarts triggered by consumer loops",
		}, []string{"result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_worker_alerts_total",
			Help: "Error-log alerts, by publish result",
		}, []string{"result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_worker_running_tasks",
			Help: "Supervised consumer loops and recurring loops currently running",
		}),
	}

	reg.MustRegister(m.messages, m.handlerDuration, m.dbRestarts, m.alerts, m.running)
	return m
}

// Message учитывает исход обработки сообщения.
func (m *Metrics) Message(queue, outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(queue, outcome).Inc()
}

// ObserveHandler записывает длительность обработчика.
func (m *Metrics) ObserveHandler(queue, task string, d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(queue, task).Observe(d.Seconds())
}

// DatabaseRestart учитывает перезапуск пулов: "ok", "failed" или "throttled".
func (m *Metrics) DatabaseRestart(result string) {
	if m == nil {
		return
	}
	m.dbRestarts.WithLabelValues(result).Inc()
}

// Alert учитывает публикацию алерта.
func (m *Metrics) Alert(result string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(result).Inc()
}

// TaskStarted / TaskFinished ведут gauge запущенных задач supervisor'а.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.running.Dec()
}
