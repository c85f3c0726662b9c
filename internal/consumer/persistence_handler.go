package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/stravahub/internal/events"
)

// PersistenceHandler writes consumed events into activity_event_log. Redelivered records
// (same topic, partition and offset) are ignored.
type PersistenceHandler struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool, logger zerolog.Logger) *PersistenceHandler {
	return &PersistenceHandler{pool: pool, logger: logger}
}

// Handle validates the payload against its event type and stores it.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	event, err := DecodePayload(msg)
	if err != nil {
		return err
	}

	tag, err := h.pool.Exec(ctx,
		`INSERT INTO activity_event_log (event_type, aggregate_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.AggregateID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		h.logger.Debug().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("event already logged")
		return nil
	}

	observeEvent(h.logger, event)
	return nil
}

// DecodePayload unmarshals the payload into the struct matching its event type.
func DecodePayload(msg Message) (any, error) {
	switch msg.EventType {
	case events.TypeActivityImported:
		var e events.ActivityImported
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		return e, nil
	case events.TypeSyncCompleted:
		var e events.SyncCompleted
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unsupported event type %q", msg.EventType)
	}
}

// observeEvent logs a newly stored event and feeds the event log metrics.
func observeEvent(logger zerolog.Logger, event any) {
	switch e := event.(type) {
	case events.ActivityImported:
		recordActivity(e)
		logger.Info().Int64("external_id", e.ExternalID).Str("activity_type", e.ActivityType).Float64("distance_meters", e.DistanceMeters).Bool("has_route", e.HasRoute).Msg("activity imported")
	case events.SyncCompleted:
		recordSyncCompleted(e)
		entry := logger.Info()
		if e.Error != "" {
			entry = logger.Warn().Str("error", e.Error)
		}
		entry.Str("run_id", e.RunID).Str("mode", e.Mode).Int("added", e.Added).Str("stop_reason", e.StopReason).Msg("sync completed")
	}
}
