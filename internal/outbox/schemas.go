package outbox

import "example.com/formcoach/internal/events"

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.AnalysisCompletedType: {Schema: analysisCompletedSchema},
}

const analysisCompletedSchema = `{
  "type": "object",
  "title": "AnalysisCompleted",
  "properties": {
    "analysis_id": {"type": "string"},
    "exercise_name": {"type": "string"},
    "rep_count": {"type": "integer", "minimum": 0},
    "form_score": {"type": "number"},
    "outcome": {"type": "string", "enum": ["ok", "process_failed", "malformed_output", "timeout"]},
    "fallback": {"type": "boolean"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["analysis_id", "exercise_name", "rep_count", "form_score", "outcome", "fallback", "created_at"],
  "additionalProperties": false
}`
