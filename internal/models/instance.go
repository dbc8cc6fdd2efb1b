package models

import "time"

// Connection states for an instance's live channel. Transitions are driven
// solely by connection.update events.
const (
	ConnectionCreated    = "created"
	ConnectionConnecting = "connecting"
	ConnectionOpen       = "open"
	ConnectionClosed     = "closed"
)

// Instance tracks one account/session on the messaging platform.
type Instance struct {
	ID              int        `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	ConnectionState string     `db:"connection_state" json:"connection_state"`
	LastConnectedAt *time.Time `db:"last_connected_at" json:"last_connected_at,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
