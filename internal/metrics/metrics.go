package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Payments
	paymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Total number of payment references created, by flow.",
		},
		[]string{"flow"}, // checkout, intent
	)
	paymentVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Total number of payment verifications, by result.",
		},
		[]string{"result"}, // paid, unpaid, error
	)

	// Business
	exchangesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchanges_completed_total",
			Help: "Total number of completed message exchanges.",
		},
		[]string{"saved"}, // true when a new message was installed
	)
	exchangesReplayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exchanges_replayed_total",
			Help: "Total number of confirmations answered from the consumed-references record.",
		},
	)
	messageLength = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "message_length_chars",
			Help:    "Distribution of saved message lengths in characters.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 300, 400, 500},
		},
	)

	// Kafka
	kafkaMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kafka_messages_sent_total",
			Help: "Total number of Kafka messages successfully sent.",
		},
	)
	kafkaErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_errors_total",
			Help: "Total number of Kafka-related errors.",
		},
		[]string{"component", "operation"},
	)

	// Outbox
	outboxMessagesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_messages_count",
			Help: "Current count of outbox messages by status.",
		},
		[]string{"status"},
	)
	outboxMessagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_sent_total",
			Help: "Total number of outbox messages marked as sent.",
		},
	)
	outboxMessagesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_messages_failed_total",
			Help: "Total number of outbox messages marked as failed.",
		},
	)
	outboxProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_processing_duration_seconds",
			Help:    "Time spent sending a single outbox message (seconds).",
			Buckets: prometheus.DefBuckets,
		},
	)
	outboxRetryCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_retries_total",
			Help: "Total number of outbox send retries (failed attempts).",
		},
	)
	outboxLagSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_lag_seconds",
			Help:    "Lag between outbox message creation and send attempt (seconds).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	outboxPendingCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_count",
			Help: "Current number of pending outbox messages.",
		},
	)

	// Store gauges
	messagesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messages_stored_count",
			Help: "Current number of rows in the messages table (slot history).",
		},
	)
	consumedReferences = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "consumed_references_count",
			Help: "Current number of unexpired consumed payment references.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			paymentsInitiated,
			paymentVerifications,

			exchangesCompleted,
			exchangesReplayed,
			messageLength,

			kafkaMessagesSent,
			kafkaErrors,

			outboxMessagesTotal,
			outboxMessagesSentTotal,
			outboxMessagesFailedTotal,
			outboxProcessingDuration,
			outboxRetryCount,
			outboxLagSeconds,
			outboxPendingCount,

			messagesStored,
			consumedReferences,
		)
		registerRedisMetrics()
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route, code string, d time.Duration) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// --- Payments ---
func IncPaymentInitiated(flow string)      { paymentsInitiated.WithLabelValues(flow).Inc() }
func IncPaymentVerification(result string) { paymentVerifications.WithLabelValues(result).Inc() }

// --- Business ---
func IncExchangeCompleted(saved bool) {
	exchangesCompleted.WithLabelValues(fmtBool(saved)).Inc()
}
func IncExchangeReplayed()       { exchangesReplayed.Inc() }
func ObserveMessageLength(n int) { messageLength.Observe(float64(max0(n))) }

// --- Kafka ---
func IncKafkaSent() { kafkaMessagesSent.Inc() }
func IncKafkaError(component, operation string) {
	kafkaErrors.WithLabelValues(component, operation).Inc()
}

// --- Outbox ---
func IncOutboxSent()                          { outboxMessagesSentTotal.Inc() }
func IncOutboxFailed()                        { outboxMessagesFailedTotal.Inc() }
func ObserveOutboxProcessing(d time.Duration) { outboxProcessingDuration.Observe(d.Seconds()) }
func IncOutboxRetry()                         { outboxRetryCount.Inc() }
func ObserveOutboxLagSeconds(sec float64) {
	if sec < 0 {
		sec = 0
	}
	outboxLagSeconds.Observe(sec)
}

// --- Gauges (DB collectors) ---
func SetOutboxStatusCount(status string, count int64) {
	if count < 0 {
		count = 0
	}
	outboxMessagesTotal.WithLabelValues(status).Set(float64(count))
}
func SetOutboxPendingCount(count int64) {
	if count < 0 {
		count = 0
	}
	outboxPendingCount.Set(float64(count))
}
func SetMessagesStoredCount(count int64) {
	if count < 0 {
		count = 0
	}
	messagesStored.Set(float64(count))
}
func SetConsumedReferencesCount(count int64) {
	if count < 0 {
		count = 0
	}
	consumedReferences.Set(float64(count))
}

// helpers
func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func fmtBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func fmtInt(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [32]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
