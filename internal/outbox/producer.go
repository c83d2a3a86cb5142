package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/directory/internal/events"
)

// EventWriter publishes directory events through one shared kafka.Writer. The topic is carried
// on each record and must be part of the events catalog.
type EventWriter struct {
	writer *kafka.Writer
}

// NewEventWriter creates an EventWriter. Records are hashed by key, the root activity id, so
// one hierarchy stays on one partition.
func NewEventWriter(brokers []string) *EventWriter {
	return &EventWriter{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// WriteMessages stamps topic on msgs and writes them synchronously.
func (w *EventWriter) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if !events.KnownTopic(topic) {
		return fmt.Errorf("topic %q is not in the events catalog", topic)
	}
	for i := range msgs {
		msgs[i].Topic = topic
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

// Close flushes pending writes and closes broker connections.
func (w *EventWriter) Close() error {
	return w.writer.Close()
}
