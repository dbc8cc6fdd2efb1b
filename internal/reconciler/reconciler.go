package reconciler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/persistence"
	"wa-sync-service/internal/platform"
	"wa-sync-service/internal/repositories"
	"wa-sync-service/internal/telemetry"
)

// GroupFetcher is the slice of the platform client the reconciler needs.
type GroupFetcher interface {
	FetchAllGroups(ctx context.Context, instance string) ([]platform.Group, error)
}

// Broadcaster fans a subject change out to live subscribers.
type Broadcaster interface {
	Publish(eventType string, payload any)
}

// Reconciler pulls canonical group metadata from the platform's REST surface
// and corrects incomplete stored state. Triggered reconciliations are
// debounced so webhook-driven writes settle first.
type Reconciler struct {
	fetcher  GroupFetcher
	gateway  *persistence.Gateway
	groups   repositories.GroupRepository
	contacts repositories.ContactRepository
	chats    repositories.ChatRepository
	hub      Broadcaster
	audit    *telemetry.AuditEmitter

	debounce   time.Duration
	batchDelay time.Duration
	timeout    time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// Config holds reconciler tunables.
type Config struct {
	Debounce   time.Duration
	BatchDelay time.Duration
	Timeout    time.Duration
}

// New builds a Reconciler. audit may be nil.
func New(
	fetcher GroupFetcher,
	gateway *persistence.Gateway,
	groups repositories.GroupRepository,
	contacts repositories.ContactRepository,
	chats repositories.ChatRepository,
	hub Broadcaster,
	audit *telemetry.AuditEmitter,
	cfg Config,
) *Reconciler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Reconciler{
		fetcher:    fetcher,
		gateway:    gateway,
		groups:     groups,
		contacts:   contacts,
		chats:      chats,
		hub:        hub,
		audit:      audit,
		debounce:   cfg.Debounce,
		batchDelay: cfg.BatchDelay,
		timeout:    cfg.Timeout,
		pending:    map[string]*time.Timer{},
	}
}

// Trigger schedules a debounced reconciliation for one group. Repeated
// triggers within the debounce window coalesce into a single run.
func (r *Reconciler) Trigger(instance, groupJID string) {
	key := instance + "|" + groupJID

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.pending[key]; ok {
		return
	}
	r.pending[key] = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		delete(r.pending, key)
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.ReconcileGroup(ctx, instance, groupJID); err != nil {
			log.Printf("group reconcile failed instance=%s group=%s: %v", instance, groupJID, err)
		}
	})
}

// ReconcileGroup fetches canonical metadata for one group and writes it if
// it is meaningful. Returns true when stored state was updated.
func (r *Reconciler) ReconcileGroup(ctx context.Context, instance, groupJID string) (bool, error) {
	fetched, err := r.fetcher.FetchAllGroups(ctx, instance)
	if err != nil {
		return false, err
	}

	var found *platform.Group
	for i := range fetched {
		if fetched[i].ID == groupJID {
			found = &fetched[i]
			break
		}
	}
	if found == nil {
		return false, nil
	}

	// A missing or generic subject means the platform has nothing better
	// than what we hold; never overwrite stored state with it.
	if found.Subject == "" || found.Subject == models.PlaceholderSubject {
		return false, nil
	}

	oldSubject := r.storedSubject(ctx, instance, groupJID)

	group := models.Group{
		Instance:    instance,
		JID:         groupJID,
		Subject:     found.Subject,
		OwnerJID:    found.Owner,
		Description: found.Description,
		Locked:      found.Restrict,
	}
	if found.Creation > 0 {
		at := time.Unix(found.Creation, 0).UTC()
		group.PlatformCreatedAt = &at
	}

	err = r.gateway.Do(ctx, func(ctx context.Context) error {
		// The owner contact must exist before the group row references it.
		if group.OwnerJID != "" {
			if err := r.contacts.EnsureContact(ctx, instance, group.OwnerJID); err != nil {
				return err
			}
		}
		if err := r.groups.UpsertGroup(ctx, group); err != nil {
			return err
		}
		return r.chats.UpdateChatSubject(ctx, instance, groupJID, group.Subject)
	})
	if err != nil {
		return false, err
	}

	if oldSubject != group.Subject {
		r.hub.Publish(models.NotifyGroupUpdate, models.GroupUpdatePayload{
			Instance:   instance,
			GroupJID:   groupJID,
			OldSubject: oldSubject,
			NewSubject: group.Subject,
		})
	}
	return true, nil
}

// ReconcileAll refreshes many groups with a fixed pause between calls so the
// platform's REST API is not hammered. One failed group never aborts the
// batch. Returns how many groups were updated out of the total requested.
func (r *Reconciler) ReconcileAll(ctx context.Context, instance string, groupJIDs []string) (updated, total int) {
	if len(groupJIDs) == 0 {
		jids, err := r.groups.ListGroupJIDs(ctx, instance)
		if err != nil {
			log.Printf("list groups failed instance=%s: %v", instance, err)
			return 0, 0
		}
		groupJIDs = jids
	}
	total = len(groupJIDs)

	for i, jid := range groupJIDs {
		ok, err := r.ReconcileGroup(ctx, instance, jid)
		if err != nil {
			log.Printf("group reconcile failed instance=%s group=%s: %v", instance, jid, err)
		} else if ok {
			updated++
		}

		if i < len(groupJIDs)-1 {
			select {
			case <-time.After(r.batchDelay):
			case <-ctx.Done():
				if r.audit != nil {
					r.audit.Emit(ctx, "WARN", "bulk group refresh canceled", instance)
				}
				return updated, total
			}
		}
	}

	if r.audit != nil {
		r.audit.Emit(ctx, "INFO", "bulk group refresh finished", instance)
	}
	return updated, total
}

// Shutdown cancels pending debounced runs and refuses new triggers.
func (r *Reconciler) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, timer := range r.pending {
		timer.Stop()
		delete(r.pending, key)
	}
}

func (r *Reconciler) storedSubject(ctx context.Context, instance, groupJID string) string {
	group, err := r.groups.GetGroup(ctx, instance, groupJID)
	if err == nil && group.Subject != "" {
		return group.Subject
	}
	if err != nil && !errors.Is(err, repositories.ErrGroupNotFound) {
		log.Printf("load group failed instance=%s group=%s: %v", instance, groupJID, err)
	}

	chat, err := r.chats.GetChat(ctx, instance, groupJID)
	if err == nil {
		return chat.Subject
	}
	if !errors.Is(err, repositories.ErrChatNotFound) {
		log.Printf("load chat failed instance=%s group=%s: %v", instance, groupJID, err)
	}
	return ""
}
