package outbox

import "example.com/stravahub/internal/events"

const activityImportedSchema = `{
  "type": "object",
  "title": "ActivityImported",
  "properties": {
    "external_id": {"type": "integer"},
    "name": {"type": "string"},
    "activity_type": {"type": "string"},
    "distance_meters": {"type": "number", "minimum": 0},
    "moving_time_seconds": {"type": "integer", "minimum": 0},
    "started_at": {"type": "string", "format": "date-time"},
    "has_route": {"type": "boolean"},
    "imported_at": {"type": "string", "format": "date-time"}
  },
  "required": ["external_id", "name", "activity_type", "distance_meters", "moving_time_seconds", "started_at", "has_route", "imported_at"],
  "additionalProperties": false
}`

const syncCompletedSchema = `{
  "type": "object",
  "title": "SyncCompleted",
  "properties": {
    "run_id": {"type": "string"},
    "mode": {"type": "string", "enum": ["recent", "full"]},
    "added": {"type": "integer"},
    "skipped": {"type": "integer"},
    "rejected": {"type": "integer"},
    "pages_fetched": {"type": "integer"},
    "stop_reason": {"type": "string"},
    "error": {"type": "string"},
    "finished_at": {"type": "string", "format": "date-time"}
  },
  "required": ["run_id", "mode", "added", "skipped", "rejected", "pages_fetched", "stop_reason", "finished_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityImported: {Schema: activityImportedSchema},
	events.TypeSyncCompleted:    {Schema: syncCompletedSchema},
}
