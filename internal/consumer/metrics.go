package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "consumer",
		Name:      "events_applied_total",
		Help:      "Directory events applied to the event log and ownership cache, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "consumer",
		Name:      "handler_attempt_failures_total",
		Help:      "Failed handler attempts, retries included, by topic and event type.",
	}, []string{"topic", "event_type"})

	parkedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "consumer",
		Name:      "events_parked_total",
		Help:      "Directory events committed without being applied after exhausting handler retries.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "directory",
		Subsystem: "consumer",
		Name:      "undecodable_records_total",
		Help:      "Records skipped because the event_type header or schema registry framing was missing.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "directory",
		Subsystem: "consumer",
		Name:      "last_applied_event_timestamp_seconds",
		Help:      "Kafka timestamp of the newest applied directory event per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, parkedCounter, decodeErrorCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordParked(msg Message) {
	parkedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
