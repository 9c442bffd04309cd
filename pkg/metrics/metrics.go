package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_total",
			Help: "Total number of messages handled by the moderation pipeline, by outcome status (count)",
		},
		[]string{"status"},
	)

	PipelineProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_processing_duration_ms",
			Help:    "End-to-end moderation pipeline duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	PipelineSideEffectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_side_effect_failures_total",
			Help: "Total number of best-effort persistence or notification failures (count)",
		},
		[]string{"stage"},
	)

	ViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_violations_total",
			Help: "Total number of detected violations by kind (count)",
		},
		[]string{"kind"},
	)

	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_requests_total",
			Help: "Total number of classifier calls by verdict status (count)",
		},
		[]string{"classifier", "status"},
	)

	ClassifierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_duration_ms",
			Help:    "Duration of classifier calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"classifier"},
	)

	VerdictCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdict_cache_requests_total",
			Help: "Verdict cache lookups by result (count)",
		},
		[]string{"classifier", "result"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of notification deliveries by transport and status (count)",
		},
		[]string{"transport", "status"},
	)

	ExemptionActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exemption_active_rules",
			Help: "Number of active exemption rules (count)",
		},
	)

	ExemptionRuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exemption_rule_evaluations_total",
			Help: "Total number of exemption rule evaluations (count)",
		},
		[]string{"rule_name", "result"},
	)

	DeduplicateMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_messages_total",
			Help: "Total number of messages processed by deduplication (count)",
		},
		[]string{"status"},
	)

	DedupProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_processing_duration_ms",
			Help:    "Processing duration for deduplication in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_size",
			Help: "Number of entries in the in-memory deduplication window (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"database", "operation"},
	)
)

// register tolerates collectors that are already registered so the Register*
// helpers can be called from several components and tests.
func register(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func RegisterModerationMetrics() {
	register(
		PipelineMessagesTotal,
		PipelineProcessingDuration,
		PipelineSideEffectFailuresTotal,
		ViolationsTotal,
		ClassifierRequestsTotal,
		ClassifierDuration,
		VerdictCacheRequestsTotal,
		NotificationsTotal,
		ExemptionActiveRules,
		ExemptionRuleEvaluationsTotal,
		DatabaseQueriesTotal,
		DatabaseQueryDuration,
		FallbackUsageTotal,
	)
}

func RegisterDedupMetrics() {
	register(
		DeduplicateMessagesTotal,
		DedupProcessingDuration,
		DedupCacheSize,
		FallbackUsageTotal,
	)
}

func RegisterBrokerMetrics() {
	register(
		RetryAttemptsTotal,
		DLQMessagesTotal,
		KafkaMessagesReadTotal,
		KafkaMessagesWrittenTotal,
		KafkaMessageSizeBytes,
		KafkaReadDuration,
		KafkaWriteDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	register(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func RegisterHTTPMetrics() {
	register(RateLimitRequestsTotal)
}

func ObservePipelineDuration(duration time.Duration, status string) {
	PipelineProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncPipelineMessage(status string) {
	PipelineMessagesTotal.WithLabelValues(status).Inc()
}

func IncSideEffectFailure(stage string) {
	PipelineSideEffectFailuresTotal.WithLabelValues(stage).Inc()
}

func IncViolation(kind string) {
	ViolationsTotal.WithLabelValues(kind).Inc()
}

func IncClassifierRequest(classifier, status string) {
	ClassifierRequestsTotal.WithLabelValues(classifier, status).Inc()
}

func ObserveClassifierDuration(classifier string, duration time.Duration) {
	ClassifierDuration.WithLabelValues(classifier).Observe(float64(duration.Milliseconds()))
}

func IncVerdictCacheRequest(classifier, result string) {
	VerdictCacheRequestsTotal.WithLabelValues(classifier, result).Inc()
}

func IncNotification(transport, status string) {
	NotificationsTotal.WithLabelValues(transport, status).Inc()
}

func SetExemptionActiveRules(count int) {
	ExemptionActiveRules.Set(float64(count))
}

func IncExemptionRuleEvaluation(ruleName, result string) {
	ExemptionRuleEvaluationsTotal.WithLabelValues(ruleName, result).Inc()
}

func ObserveDedupDuration(duration time.Duration, status string) {
	DedupProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

// ObserveDatabaseQuery records one store or registration query.
func ObserveDatabaseQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(database, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(database, operation).Observe(float64(duration.Milliseconds()))
}
