package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the wire format stored in outbox_events.payload and
// consumed downstream. Version lets consumers branch on payload schema
// changes without breaking older in-flight events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}
