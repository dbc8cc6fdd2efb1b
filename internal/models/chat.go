package models

import "time"

// Chat types, derived from the external id's suffix conventions.
const (
	ChatTypeIndividual = "individual"
	ChatTypeGroup      = "group"
	ChatTypeBroadcast  = "broadcast"
)

// PlaceholderSubject is the generic subject a chat carries before group
// metadata has been reconciled. A chat holding it is a valid lifecycle
// state, not an error.
const PlaceholderSubject = "Group Chat"

// Chat represents a conversation, keyed by (instance, jid). It may exist as
// a placeholder with minimal fields before full metadata is known.
type Chat struct {
	ID            int        `db:"id" json:"id"`
	Instance      string     `db:"instance" json:"instance"`
	JID           string     `db:"jid" json:"jid"`
	Type          string     `db:"type" json:"type"`
	Subject       string     `db:"subject" json:"subject"`
	UnreadCount   int        `db:"unread_count" json:"unread_count"`
	Archived      bool       `db:"archived" json:"archived"`
	Pinned        bool       `db:"pinned" json:"pinned"`
	Muted         bool       `db:"muted" json:"muted"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
