package models

import "time"

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Delivery statuses in ascending order. "played" from the platform collapses
// to read before it reaches storage.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// StatusRank orders delivery statuses so that updates never regress a stored
// status. Unknown statuses rank below everything.
func StatusRank(status string) int {
	switch status {
	case StatusPending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	default:
		return 0
	}
}

// Message represents a synced platform message, keyed by (instance, external id).
type Message struct {
	ID         int       `db:"id" json:"id"`
	Instance   string    `db:"instance" json:"instance"`
	ExternalID string    `db:"external_id" json:"external_id"`
	ChatJID    string    `db:"chat_jid" json:"chat_jid"`
	SenderJID  string    `db:"sender_jid" json:"sender_jid"`
	Direction  string    `db:"direction" json:"direction"`
	Type       string    `db:"type" json:"type"`
	Content    string    `db:"content" json:"content"`
	Status     string    `db:"status" json:"status"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
