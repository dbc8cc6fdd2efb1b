package models

// Notification types fanned out to live subscribers. The set is the fixed
// wire vocabulary consumed by UI clients; new_task is reserved for task
// producers outside this pipeline and has no publisher here.
const (
	NotifyConnected        = "connected"
	NotifyNewMessage       = "new_message"
	NotifyNewTask          = "new_task"
	NotifyNewReaction      = "new_reaction"
	NotifyGroupUpdate      = "group_update"
	NotifyPresenceUpdate   = "presence_update"
	NotifyConnectionUpdate = "connection_update"
)

// Notification is the frame written to every live subscriber stream.
type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// GroupUpdatePayload carries a reconciled subject change.
type GroupUpdatePayload struct {
	Instance   string `json:"instance"`
	GroupJID   string `json:"group_jid"`
	OldSubject string `json:"old_subject"`
	NewSubject string `json:"new_subject"`
}

// ConnectionUpdatePayload announces an instance connection transition.
type ConnectionUpdatePayload struct {
	Instance string `json:"instance"`
	State    string `json:"state"`
}
