package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/stravahub/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))

	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(258), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestDeliverGroupsByTopicAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 17}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 10)

	messages := []Message{
		outboxMessage(1, events.TypeActivityImported, "activity_imported", "42"),
		outboxMessage(2, events.TypeSyncCompleted, "sync_runs", "run-1"),
		outboxMessage(3, events.TypeActivityImported, "activity_imported", "43"),
	}

	require.NoError(t, dispatcher.deliver(context.Background(), messages))

	require.Len(t, producer.writes, 2)
	require.Equal(t, "activity_imported", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)
	require.Equal(t, "sync_runs", producer.writes[1].topic)

	first := producer.writes[0].messages[0]
	require.Equal(t, "42", string(first.Key))
	require.Equal(t, uint32(17), binary.BigEndian.Uint32(first.Value[1:5]))
	require.Equal(t, map[string]string{
		"event_type":     events.TypeActivityImported,
		"schema_subject": "activity_imported-value",
		"aggregate_id":   "42",
	}, headerMap(first.Headers))

	require.Len(t, registry.calls, 2, "one registry call per subject")
}

func TestDeliverCachesSchemaIDs(t *testing.T) {
	registry := &stubRegistry{id: 5}
	dispatcher := NewDispatcher(nil, &stubProducer{}, registry, time.Second, 10)
	msg := outboxMessage(1, events.TypeActivityImported, "activity_imported", "1")

	require.NoError(t, dispatcher.deliver(context.Background(), []Message{msg}))
	require.NoError(t, dispatcher.deliver(context.Background(), []Message{msg}))
	require.Len(t, registry.calls, 1)
}

func TestDeliverSurfacesFailures(t *testing.T) {
	msg := outboxMessage(1, events.TypeActivityImported, "activity_imported", "1")

	registryFail := NewDispatcher(nil, &stubProducer{}, &stubRegistry{err: errors.New("registry down")}, time.Second, 10)
	require.ErrorContains(t, registryFail.deliver(context.Background(), []Message{msg}), "registry down")

	producerFail := NewDispatcher(nil, &stubProducer{err: errors.New("broker gone")}, &stubRegistry{id: 1}, time.Second, 10)
	require.ErrorContains(t, producerFail.deliver(context.Background(), []Message{msg}), "write activity_imported: broker gone")

	unknown := outboxMessage(2, "activity.deleted", "activity_imported", "2")
	require.ErrorContains(t, producerFail.deliver(context.Background(), []Message{unknown}), "no schema metadata")
}

func TestSplitRoutable(t *testing.T) {
	deliverable, unroutable := splitRoutable([]Message{
		outboxMessage(1, events.TypeActivityImported, "activity_imported", "1"),
		outboxMessage(2, "activity.deleted", "activity_imported", "2"),
	})
	require.Len(t, deliverable, 1)
	require.Len(t, unroutable, 1)
	require.Equal(t, int64(2), unroutable[0].EventID)
}

func TestWithMaxAttemptsIgnoresNonPositive(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{}, time.Second, 10, WithMaxAttempts(0))
	require.Equal(t, DefaultMaxAttempts, d.maxAttempts)

	d = NewDispatcher(nil, &stubProducer{}, &stubRegistry{}, time.Second, 10, WithMaxAttempts(2))
	require.Equal(t, 2, d.maxAttempts)
}

func TestWithClaimTimeoutIgnoresNonPositive(t *testing.T) {
	d := NewDispatcher(nil, &stubProducer{}, &stubRegistry{}, time.Second, 10, WithClaimTimeout(-time.Second))
	require.Equal(t, DefaultClaimTimeout, d.claimTimeout)

	d = NewDispatcher(nil, &stubProducer{}, &stubRegistry{}, time.Second, 10, WithClaimTimeout(30*time.Second))
	require.Equal(t, 30*time.Second, d.claimTimeout)
}

func outboxMessage(id int64, eventType, topic, aggregateID string) Message {
	return Message{
		EventID:       id,
		AggregateType: "activity",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		SchemaSubject: topic + "-value",
		PartitionKey:  aggregateID,
		Payload:       []byte(`{"external_id":1}`),
	}
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	delay  time.Duration
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func TestRecordFailedFlagsLastAttempt(t *testing.T) {
	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(events.TypeSyncCompleted))
	beforeAbandoned := testutil.ToFloat64(abandonedCounter.WithLabelValues("sync_runs"))

	fresh := outboxMessage(1, events.TypeSyncCompleted, "sync_runs", "run-1")
	last := outboxMessage(2, events.TypeSyncCompleted, "sync_runs", "run-2")
	last.Attempts = 2

	recordFailed([]Message{fresh, last}, 3)

	require.InDelta(t, beforeFailed+2, testutil.ToFloat64(failedCounter.WithLabelValues(events.TypeSyncCompleted)), 0.0001)
	require.InDelta(t, beforeAbandoned+1, testutil.ToFloat64(abandonedCounter.WithLabelValues("sync_runs")), 0.0001)
}
