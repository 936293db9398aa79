package domain

// Event is one row of the change journal.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Version    int64  `json:"version"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor,omitempty"`
	Payload    string `json:"payload,omitempty"`
}
