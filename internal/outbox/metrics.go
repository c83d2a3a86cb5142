package outbox

import "github.com/prometheus/client_golang/prometheus"

// Failure stages for dead-lettered events.
const (
	stageCatalog  = "catalog"
	stageRegistry = "schema_registry"
	stageKafka    = "kafka"
)

var (
	publishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "outbox",
		Name:      "events_published_total",
		Help:      "Directory events written to Kafka and marked published, by event type.",
	}, []string{"event_type"})

	deadLetteredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "outbox",
		Name:      "events_dead_lettered_total",
		Help:      "Directory events moved to outbox_dlq, by event type and the stage that failed.",
	}, []string{"event_type", "stage"})

	claimedBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "directory",
		Subsystem: "outbox",
		Name:      "claimed_batch_size",
		Help:      "Pending activity events claimed per dispatcher tick.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "directory",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time from claiming a non-empty batch to marking it published.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(publishedCounter, deadLetteredCounter, claimedBatchSize, batchDuration)
}

// deliveryError records which stage of delivery failed.
type deliveryError struct {
	stage string
	err   error
}

func (e *deliveryError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *deliveryError) Unwrap() error { return e.err }
