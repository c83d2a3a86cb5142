package outbox

import "example.com/directory/internal/events"

const activityCreatedSchema = `{
  "type": "object",
  "title": "ActivityCreated",
  "properties": {
    "activity_id": {"type": "integer"},
    "name": {"type": "string"},
    "parent_id": {"type": "integer"},
    "owner_ids": {"type": "array", "items": {"type": "integer"}},
    "truncated_links": {"type": "integer", "minimum": 0},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "name", "owner_ids", "truncated_links", "created_at"],
  "additionalProperties": false
}`

// schemaCatalog maps event type to its JSON schema.
var schemaCatalog = map[string]string{
	events.TypeActivityCreated: activityCreatedSchema,
}
