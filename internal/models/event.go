package models

import (
	"encoding/json"
	"time"
)

// Canonical event types produced by both ingestion paths. The webhook path
// translates the platform's hyphenated spelling into these dotted names.
const (
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventContactsUpsert   = "contacts.upsert"
	EventChatsUpsert      = "chats.upsert"
	EventConnectionUpdate = "connection.update"
	EventPresenceUpdate   = "presence.update"
)

// CanonicalEvent is the pipeline's uniform representation of an inbound
// platform occurrence, regardless of whether it arrived over the webhook or
// the live stream. Immutable once constructed.
type CanonicalEvent struct {
	Instance   string          `json:"instance"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
