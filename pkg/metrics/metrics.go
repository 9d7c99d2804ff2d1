package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Total number of inbound events received (count)",
		},
		[]string{"source_type", "status"},
	)

	MatchResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_match_results_total",
			Help: "Total number of rule-matching outcomes per event (count)",
		},
		[]string{"source_type", "result"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total number of completed deliveries by terminal outcome (count)",
		},
		[]string{"method", "outcome"},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_attempts_total",
			Help: "Total number of HTTP delivery attempts including retries (count)",
		},
		[]string{"outcome"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_duration_ms",
			Help:    "End-to-end delivery duration including retries in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"outcome"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retry_attempts_total",
			Help: "Total number of delivery retry attempts (count)",
		},
		[]string{"endpoint_host"},
	)

	HistoryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_history_writes_total",
			Help: "Total number of history rows written or updated (count)",
		},
		[]string{"status"},
	)

	ActiveRules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_active_rules",
			Help: "Number of active forwarding rules by source type (count)",
		},
		[]string{"source_type"},
	)

	DuplicateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_duplicate_events_total",
			Help: "Total number of inbound events dropped as duplicates (count)",
		},
		[]string{"source_type"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_kafka_messages_read_total",
			Help: "Total number of raw events read from Kafka (count)",
		},
		[]string{"topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_kafka_messages_written_total",
			Help: "Total number of outcome events written to Kafka (count)",
		},
		[]string{"topic"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(MatchResultsTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryAttemptsTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(HistoryWritesTotal)
	prometheus.MustRegister(ActiveRules)
	prometheus.MustRegister(DuplicateEventsTotal)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveDeliveryDuration(duration time.Duration, outcome string) {
	DeliveryDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncEventReceived(sourceType, status string) {
	EventsReceivedTotal.WithLabelValues(sourceType, status).Inc()
}

func IncMatchResult(sourceType, result string) {
	MatchResultsTotal.WithLabelValues(sourceType, result).Inc()
}

func IncDelivery(method, outcome string) {
	DeliveriesTotal.WithLabelValues(method, outcome).Inc()
}

func IncDeliveryAttempt(outcome string) {
	DeliveryAttemptsTotal.WithLabelValues(outcome).Inc()
}

func IncRetryAttempt(endpointHost string) {
	RetryAttemptsTotal.WithLabelValues(endpointHost).Inc()
}

func IncHistoryWrite(status string) {
	HistoryWritesTotal.WithLabelValues(status).Inc()
}

func SetActiveRules(sourceType string, count int) {
	ActiveRules.WithLabelValues(sourceType).Set(float64(count))
}

func IncDuplicateEvent(sourceType string) {
	DuplicateEventsTotal.WithLabelValues(sourceType).Inc()
}

func IncKafkaMessagesRead(topic string) {
	KafkaMessagesReadTotal.WithLabelValues(topic).Inc()
}

func IncKafkaMessagesWritten(topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(topic).Inc()
}
