package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/observability"
	"wa-sync-service/internal/persistence"
	"wa-sync-service/internal/repositories"
)

// Broadcaster fans a state change out to live subscribers.
type Broadcaster interface {
	Publish(eventType string, payload any)
}

// GroupTrigger schedules a group metadata reconciliation.
type GroupTrigger interface {
	Trigger(instance, groupJID string)
}

// Router dispatches canonical events to type-specific handlers. Every write
// goes through the persistence gateway; a failure on one item of a batch
// never aborts the remaining items and never propagates to the caller.
type Router struct {
	gateway   *persistence.Gateway
	messages  repositories.MessageRepository
	contacts  repositories.ContactRepository
	chats     repositories.ChatRepository
	instances repositories.InstanceRepository
	hub       Broadcaster
	groups    GroupTrigger
}

// NewRouter builds a Router. groups may be nil when reconciliation is not
// wired (tests).
func NewRouter(
	gateway *persistence.Gateway,
	messages repositories.MessageRepository,
	contacts repositories.ContactRepository,
	chats repositories.ChatRepository,
	instances repositories.InstanceRepository,
	hub Broadcaster,
	groups GroupTrigger,
) *Router {
	return &Router{
		gateway:   gateway,
		messages:  messages,
		contacts:  contacts,
		chats:     chats,
		instances: instances,
		hub:       hub,
		groups:    groups,
	}
}

// Dispatch routes one canonical event. It never panics outward and never
// returns an error: ingestion must survive any single bad payload.
func (r *Router) Dispatch(ctx context.Context, ev models.CanonicalEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("router panic recovered instance=%s event=%s: %v", ev.Instance, ev.Event, rec)
		}
	}()

	switch ev.Event {
	case models.EventMessagesUpsert:
		r.handleMessagesUpsert(ctx, ev)
	case models.EventMessagesUpdate:
		r.handleMessagesUpdate(ctx, ev)
	case models.EventContactsUpsert:
		r.handleContactsUpsert(ctx, ev)
	case models.EventChatsUpsert:
		r.handleChatsUpsert(ctx, ev)
	case models.EventConnectionUpdate:
		r.handleConnectionUpdate(ctx, ev)
	case models.EventPresenceUpdate:
		r.handlePresenceUpdate(ctx, ev)
	default:
		// Unknown upstream event names are dropped for forward compatibility.
		log.Printf("unsupported event dropped instance=%s event=%s", ev.Instance, ev.Event)
		observability.IncPipelineItem(ev.Event, "dropped")
	}
}

func (r *Router) handleMessagesUpsert(ctx context.Context, ev models.CanonicalEvent) {
	for _, raw := range flattenItems(ev.Payload, "data", "messages") {
		var item messageItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Printf("message item unreadable instance=%s: %v", ev.Instance, err)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}
		if item.Key.ID == "" || item.Key.RemoteJID == "" {
			log.Printf("message item missing id or chat instance=%s", ev.Instance)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		kind, summary := classifyMessage(item.Message)

		direction := models.DirectionInbound
		if item.Key.FromMe {
			direction = models.DirectionOutbound
		}
		sender := item.Participant
		if sender == "" {
			sender = item.Key.RemoteJID
		}
		status := mapDeliveryStatus(item.Status)
		if status == "" {
			status = models.StatusPending
		}
		ts := ev.ReceivedAt
		if item.MessageTimestamp > 0 {
			ts = time.Unix(item.MessageTimestamp, 0).UTC()
		}

		chatType := chatTypeFromJID(item.Key.RemoteJID)
		subject := ""
		if chatType == models.ChatTypeGroup {
			subject = models.PlaceholderSubject
		}

		msg := models.Message{
			Instance:   ev.Instance,
			ExternalID: item.Key.ID,
			ChatJID:    item.Key.RemoteJID,
			SenderJID:  sender,
			Direction:  direction,
			Type:       kind,
			Content:    summary,
			Status:     status,
			Timestamp:  ts,
		}

		var stored models.Message
		err := r.gateway.Do(ctx, func(ctx context.Context) error {
			if err := r.chats.EnsureChat(ctx, ev.Instance, item.Key.RemoteJID, chatType, subject); err != nil {
				return err
			}
			var err error
			stored, err = r.messages.UpsertMessage(ctx, msg)
			if err != nil {
				return err
			}
			return r.chats.BumpLastMessage(ctx, ev.Instance, item.Key.RemoteJID, ts)
		})
		if err != nil {
			log.Printf("message upsert failed instance=%s id=%s: %v", ev.Instance, item.Key.ID, err)
			observability.IncPipelineItem(ev.Event, "error")
			continue
		}

		notify := models.NotifyNewMessage
		if kind == "reaction" {
			notify = models.NotifyNewReaction
		}
		r.hub.Publish(notify, stored)

		if chatType == models.ChatTypeGroup && r.groups != nil {
			r.groups.Trigger(ev.Instance, item.Key.RemoteJID)
		}
		observability.IncPipelineItem(ev.Event, "ok")
	}
}

func (r *Router) handleMessagesUpdate(ctx context.Context, ev models.CanonicalEvent) {
	for _, raw := range flattenItems(ev.Payload, "data", "messages") {
		var item messageUpdateItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Printf("message update unreadable instance=%s: %v", ev.Instance, err)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}
		if item.Key.ID == "" {
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		rawStatus := item.Update.Status
		if rawStatus == "" {
			rawStatus = item.Status
		}
		status := mapDeliveryStatus(rawStatus)
		if status == "" {
			log.Printf("unknown delivery status dropped instance=%s id=%s status=%q", ev.Instance, item.Key.ID, rawStatus)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		err := r.gateway.Do(ctx, func(ctx context.Context) error {
			return r.messages.UpdateMessageStatus(ctx, ev.Instance, item.Key.ID, status)
		})
		if errors.Is(err, repositories.ErrMessageNotFound) {
			// Updates for messages we never stored are dropped, not queued.
			log.Printf("status update for unknown message dropped instance=%s id=%s", ev.Instance, item.Key.ID)
			observability.IncPipelineItem(ev.Event, "dropped")
			continue
		}
		if err != nil {
			log.Printf("status update failed instance=%s id=%s: %v", ev.Instance, item.Key.ID, err)
			observability.IncPipelineItem(ev.Event, "error")
			continue
		}
		observability.IncPipelineItem(ev.Event, "ok")
	}
}

func (r *Router) handleContactsUpsert(ctx context.Context, ev models.CanonicalEvent) {
	for _, raw := range flattenItems(ev.Payload, "data", "contacts") {
		var item contactItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Printf("contact item unreadable instance=%s: %v", ev.Instance, err)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}
		if item.ID == "" {
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		name := item.Name
		if name == "" {
			name = item.PushName
		}
		avatar := item.ProfilePictureURL
		if avatar == "" {
			avatar = item.ProfilePicURL
		}

		contact := models.Contact{
			Instance:          ev.Instance,
			JID:               item.ID,
			Name:              name,
			ProfilePictureURL: avatar,
			IsBusiness:        item.IsBusiness,
			IsBlocked:         item.IsBlocked,
		}
		err := r.gateway.Do(ctx, func(ctx context.Context) error {
			return r.contacts.UpsertContact(ctx, contact)
		})
		if err != nil {
			log.Printf("contact upsert failed instance=%s jid=%s: %v", ev.Instance, item.ID, err)
			observability.IncPipelineItem(ev.Event, "error")
			continue
		}
		observability.IncPipelineItem(ev.Event, "ok")
	}
}

func (r *Router) handleChatsUpsert(ctx context.Context, ev models.CanonicalEvent) {
	for _, raw := range flattenItems(ev.Payload, "data", "chats") {
		var item chatItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Printf("chat item unreadable instance=%s: %v", ev.Instance, err)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}
		if item.ID == "" {
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		chat := models.Chat{
			Instance:    ev.Instance,
			JID:         item.ID,
			Type:        chatTypeFromJID(item.ID),
			Subject:     item.Name,
			UnreadCount: item.UnreadCount,
			Archived:    item.Archived,
			Pinned:      item.Pinned,
			Muted:       item.MuteEndTime > 0,
		}
		if item.ConversationTimestamp > 0 {
			at := time.Unix(item.ConversationTimestamp, 0).UTC()
			chat.LastMessageAt = &at
		}

		err := r.gateway.Do(ctx, func(ctx context.Context) error {
			return r.chats.UpsertChat(ctx, chat)
		})
		if err != nil {
			log.Printf("chat upsert failed instance=%s jid=%s: %v", ev.Instance, item.ID, err)
			observability.IncPipelineItem(ev.Event, "error")
			continue
		}
		observability.IncPipelineItem(ev.Event, "ok")
	}
}

func (r *Router) handleConnectionUpdate(ctx context.Context, ev models.CanonicalEvent) {
	for _, raw := range flattenItems(ev.Payload, "data") {
		var item connectionItem
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Printf("connection update unreadable instance=%s: %v", ev.Instance, err)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		var state string
		var connectedAt *time.Time
		switch item.State {
		case "open":
			state = models.ConnectionOpen
			now := ev.ReceivedAt
			connectedAt = &now
		case "connecting":
			state = models.ConnectionConnecting
		case "close", "closed":
			state = models.ConnectionClosed
		default:
			log.Printf("unknown connection state dropped instance=%s state=%q", ev.Instance, item.State)
			observability.IncPipelineItem(ev.Event, "skipped")
			continue
		}

		err := r.gateway.Do(ctx, func(ctx context.Context) error {
			return r.instances.UpsertConnectionState(ctx, ev.Instance, state, connectedAt)
		})
		if err != nil {
			log.Printf("connection state update failed instance=%s: %v", ev.Instance, err)
			observability.IncPipelineItem(ev.Event, "error")
			continue
		}

		r.hub.Publish(models.NotifyConnectionUpdate, models.ConnectionUpdatePayload{
			Instance: ev.Instance,
			State:    state,
		})
		observability.IncPipelineItem(ev.Event, "ok")
	}
}

func (r *Router) handlePresenceUpdate(ctx context.Context, ev models.CanonicalEvent) {
	var payload any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		log.Printf("presence update unreadable instance=%s: %v", ev.Instance, err)
		observability.IncPipelineItem(ev.Event, "skipped")
		return
	}
	// Presence carries no durable state; it is fanned out only.
	r.hub.Publish(models.NotifyPresenceUpdate, map[string]any{
		"instance": ev.Instance,
		"presence": payload,
	})
	observability.IncPipelineItem(ev.Event, "ok")
}
