package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/stravahub/internal/events"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"external_id":42,"name":"Morning Run"}`)
	msg := framedMessage(10, 42, payload, events.TypeActivityImported)

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(zerolog.New(io.Discard))).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, events.TypeActivityImported, handler.last.EventType)
	require.Equal(t, "42", handler.last.AggregateID)
	require.Equal(t, "activity_imported-value", handler.last.SchemaSubject)
	require.Equal(t, 42, handler.last.SchemaID)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	msg := framedMessage(20, 99, []byte(`{"run_id":"r1"}`), events.TypeSyncCompleted)

	reader := &stubReader{messages: []kafka.Message{msg}, after: contextCanceled}
	handler := &stubHandler{err: errors.New("boom")}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	short := kafka.Message{Topic: "poison", Value: []byte{0, 1}}
	noHeader := framedMessage(2, 1, []byte(`{}`), "")
	noHeader.Topic = "poison"
	noHeader.Headers = nil

	before := testutil.ToFloat64(decodeErrorCounter.WithLabelValues("poison"))

	reader := &stubReader{messages: []kafka.Message{short, noHeader}, after: contextCanceled}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 2, reader.commitCalls)
	require.InDelta(t, before+2, testutil.ToFloat64(decodeErrorCounter.WithLabelValues("poison")), 0.0001)
}

func TestProcessorStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{messages: []kafka.Message{framedMessage(1, 1, []byte(`{}`), events.TypeSyncCompleted)}}
	err := NewProcessor(reader, &stubHandler{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, reader.index)
}

func TestDecodeMessageRejectsBadFrames(t *testing.T) {
	wrongMagic := framedMessage(1, 1, []byte(`{}`), events.TypeSyncCompleted)
	wrongMagic.Value[0] = 1
	_, err := decodeMessage(wrongMagic)
	require.ErrorContains(t, err, "magic byte")

	notJSON := framedMessage(1, 1, []byte(`not json`), events.TypeSyncCompleted)
	_, err = decodeMessage(notJSON)
	require.ErrorContains(t, err, "valid JSON")
}

func TestDecodePayload(t *testing.T) {
	event, err := DecodePayload(Message{EventType: events.TypeActivityImported, Payload: []byte(`{"external_id":7,"activity_type":"Ride","distance_meters":1200.5}`)})
	require.NoError(t, err)
	imported, ok := event.(events.ActivityImported)
	require.True(t, ok)
	require.Equal(t, int64(7), imported.ExternalID)

	event, err = DecodePayload(Message{EventType: events.TypeSyncCompleted, Payload: []byte(`{"run_id":"r1","mode":"full","added":3}`)})
	require.NoError(t, err)
	require.Equal(t, 3, event.(events.SyncCompleted).Added)

	_, err = DecodePayload(Message{EventType: "activity.deleted", Payload: []byte(`{}`)})
	require.ErrorContains(t, err, "unsupported event type")

	_, err = DecodePayload(Message{EventType: events.TypeSyncCompleted, Payload: []byte(`{"added":"three"}`)})
	require.Error(t, err)
}

func TestObserveEventFeedsEventLogMetrics(t *testing.T) {
	beforeRides := testutil.ToFloat64(activitiesLogged.WithLabelValues("Ride"))
	beforeDistance := testutil.ToFloat64(distanceLogged.WithLabelValues("Ride"))
	beforeUnknown := testutil.ToFloat64(activitiesLogged.WithLabelValues("unknown"))
	beforeFailed := testutil.ToFloat64(syncRunsLogged.WithLabelValues("recent", "failed"))

	logger := zerolog.New(io.Discard)
	observeEvent(logger, events.ActivityImported{ExternalID: 1, ActivityType: "Ride", DistanceMeters: 1500})
	observeEvent(logger, events.ActivityImported{ExternalID: 2})

	finished := time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC)
	observeEvent(logger, events.SyncCompleted{RunID: "r1", Mode: "recent", Error: "token refresh failed", FinishedAt: finished})

	require.InDelta(t, beforeRides+1, testutil.ToFloat64(activitiesLogged.WithLabelValues("Ride")), 0.0001)
	require.InDelta(t, beforeDistance+1500, testutil.ToFloat64(distanceLogged.WithLabelValues("Ride")), 0.0001)
	require.InDelta(t, beforeUnknown+1, testutil.ToFloat64(activitiesLogged.WithLabelValues("unknown")), 0.0001)
	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(syncRunsLogged.WithLabelValues("recent", "failed")), 0.0001)
	require.Equal(t, float64(finished.Unix()), testutil.ToFloat64(lastSyncCompleted))
}

func framedMessage(offset int64, schemaID uint32, payload []byte, eventType string) kafka.Message {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)

	topic := "activity_imported"
	aggregateID := "42"
	if eventType == events.TypeSyncCompleted {
		topic = "sync_runs"
		aggregateID = "run-1"
	}

	return kafka.Message{
		Topic:  topic,
		Offset: offset,
		Time:   time.Now().UTC(),
		Value:  value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "aggregate_id", Value: []byte(aggregateID)},
			{Key: "schema_subject", Value: []byte(topic + "-value")},
		},
	}
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
