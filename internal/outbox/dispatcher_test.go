package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/directory/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(513, []byte(`{"a":1}`))
	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(513), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	store := &fakeStore{pending: []Message{
		activityMessage(1, "10"),
		activityMessage(2, "11"),
	}}
	producer := &fakeProducer{}
	registry := &fakeRegistry{id: 7}

	d := NewDispatcher(store, producer, registry, 0, 10)
	require.NoError(t, d.ProcessBatch(context.Background()))

	require.Equal(t, []int64{1, 2}, store.published)
	require.Empty(t, store.dlq)
	require.Len(t, producer.written[events.TopicActivities], 2)

	first := producer.written[events.TopicActivities][0]
	require.Equal(t, "10", string(first.Key))
	require.Equal(t, uint32(7), binary.BigEndian.Uint32(first.Value[1:5]))
	require.Contains(t, first.Headers, kafka.Header{Key: "event_type", Value: []byte(events.TypeActivityCreated)})
}

func TestProcessBatchMovesFailuresToDLQ(t *testing.T) {
	store := &fakeStore{pending: []Message{activityMessage(5, "1")}}
	producer := &fakeProducer{err: errors.New("broker unavailable")}

	before := counterValue(t, deadLetteredCounter.WithLabelValues(events.TypeActivityCreated, stageKafka))

	d := NewDispatcher(store, producer, &fakeRegistry{id: 1}, 0, 10)
	require.NoError(t, d.ProcessBatch(context.Background()))

	require.Len(t, store.dlq, 1)
	require.Contains(t, store.dlq[0], "broker unavailable")
	require.Equal(t, []int64{5}, store.published)
	require.Equal(t, before+1, counterValue(t, deadLetteredCounter.WithLabelValues(events.TypeActivityCreated, stageKafka)))
}

func TestProcessBatchUnknownEventType(t *testing.T) {
	msg := activityMessage(9, "1")
	msg.EventType = "activity.renamed"
	store := &fakeStore{pending: []Message{msg}}

	before := counterValue(t, deadLetteredCounter.WithLabelValues("activity.renamed", stageCatalog))

	d := NewDispatcher(store, &fakeProducer{}, &fakeRegistry{id: 1}, 0, 10)
	require.NoError(t, d.ProcessBatch(context.Background()))
	require.Len(t, store.dlq, 1)
	require.Contains(t, store.dlq[0], "catalog: no schema metadata")
	require.Equal(t, before+1, counterValue(t, deadLetteredCounter.WithLabelValues("activity.renamed", stageCatalog)))
}

func TestProcessBatchCountsPublishedByEventType(t *testing.T) {
	published := publishedCounter.WithLabelValues(events.TypeActivityCreated)
	before := counterValue(t, published)

	store := &fakeStore{pending: []Message{activityMessage(11, "1"), activityMessage(12, "1")}}
	d := NewDispatcher(store, &fakeProducer{}, &fakeRegistry{id: 3}, 0, 10)
	require.NoError(t, d.ProcessBatch(context.Background()))
	require.Equal(t, []int64{11, 12}, store.published)
	require.Equal(t, before+2, counterValue(t, published))
}

func TestEventWriterRejectsTopicsOutsideCatalog(t *testing.T) {
	w := NewEventWriter([]string{"127.0.0.1:1"})
	t.Cleanup(func() { _ = w.Close() })

	err := w.WriteMessages(context.Background(), "directory.unknown", kafka.Message{Value: []byte("x")})
	require.ErrorContains(t, err, `"directory.unknown" is not in the events catalog`)
}

func TestProcessBatchEmpty(t *testing.T) {
	store := &fakeStore{}
	d := NewDispatcher(store, &fakeProducer{}, &fakeRegistry{}, 0, 10)
	require.NoError(t, d.ProcessBatch(context.Background()))
	require.Nil(t, store.published)
}

func TestSchemaRegistryCachesIDs(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/subjects/directory.activities-value/versions", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "JSON", body["schemaType"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":31}`))
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	for i := 0; i < 3; i++ {
		id, err := client.EnsureSchema(context.Background(), "directory.activities-value", activityCreatedSchema)
		require.NoError(t, err)
		require.Equal(t, 31, id)
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestSchemaRegistryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "incompatible", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "status 409")
}

func activityMessage(id int64, key string) Message {
	return Message{
		EventID:       id,
		AggregateType: "activity",
		AggregateID:   key,
		EventType:     events.TypeActivityCreated,
		Topic:         events.TopicActivities,
		SchemaSubject: events.TopicActivities + "-value",
		PartitionKey:  key,
		Payload:       json.RawMessage(`{"activity_id":1}`),
	}
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type fakeStore struct {
	pending   []Message
	published []int64
	dlq       []string
}

func (s *fakeStore) Claim(_ context.Context, limit int) ([]Message, error) {
	if len(s.pending) > limit {
		out := s.pending[:limit]
		s.pending = s.pending[limit:]
		return out, nil
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, ids []int64) error {
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeStore) MoveToDLQ(_ context.Context, _ Message, reason string) error {
	s.dlq = append(s.dlq, reason)
	return nil
}

type fakeProducer struct {
	written map[string][]kafka.Message
	err     error
}

func (p *fakeProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	if p.written == nil {
		p.written = make(map[string][]kafka.Message)
	}
	p.written[topic] = append(p.written[topic], msgs...)
	return nil
}

type fakeRegistry struct {
	id int
}

func (r *fakeRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	return r.id, nil
}
