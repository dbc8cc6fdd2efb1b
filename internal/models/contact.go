package models

import "time"

// Contact represents a platform contact, keyed by (instance, jid).
// Upserts are last-write-wins on reported fields only: an event that lacks
// a name or avatar must not erase a previously known value. The flag
// pointers distinguish "reported false" from "not reported" for the same
// reason.
type Contact struct {
	ID                int        `db:"id" json:"id"`
	Instance          string     `db:"instance" json:"instance"`
	JID               string     `db:"jid" json:"jid"`
	Name              string     `db:"name" json:"name"`
	ProfilePictureURL string     `db:"profile_picture_url" json:"profile_picture_url"`
	IsBusiness        *bool      `db:"is_business" json:"is_business"`
	IsBlocked         *bool      `db:"is_blocked" json:"is_blocked"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
