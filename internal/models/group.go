package models

import "time"

// Group holds group-specific metadata for a group chat, keyed by
// (instance, jid). It is reconciled asynchronously from the platform's REST
// surface rather than written on the hot ingestion path.
type Group struct {
	ID                int        `db:"id" json:"id"`
	Instance          string     `db:"instance" json:"instance"`
	JID               string     `db:"jid" json:"jid"`
	Subject           string     `db:"subject" json:"subject"`
	OwnerJID          string     `db:"owner_jid" json:"owner_jid"`
	Description       string     `db:"description" json:"description"`
	Locked            bool       `db:"locked" json:"locked"`
	PlatformCreatedAt *time.Time `db:"platform_created_at" json:"platform_created_at,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
