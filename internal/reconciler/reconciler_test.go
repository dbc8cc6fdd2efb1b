package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/persistence"
	"wa-sync-service/internal/platform"
	"wa-sync-service/internal/repositories"
)

type fakeFetcher struct {
	mu     sync.Mutex
	groups []platform.Group
	err    error
	calls  int
}

func (f *fakeFetcher) FetchAllGroups(ctx context.Context, instance string) ([]platform.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.groups, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	groups   map[string]models.Group
	chats    map[string]models.Chat
	contacts map[string]bool
	ops      []string
	failJIDs map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		groups:   map[string]models.Group{},
		chats:    map[string]models.Chat{},
		contacts: map[string]bool{},
		failJIDs: map[string]bool{},
	}
}

func (s *fakeStore) UpsertGroup(ctx context.Context, group models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failJIDs[group.JID] {
		return errors.New("simulated write failure")
	}
	s.ops = append(s.ops, "group:"+group.JID)
	s.groups[group.JID] = group
	return nil
}

func (s *fakeStore) GetGroup(ctx context.Context, instance, jid string) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[jid]
	if !ok {
		return models.Group{}, repositories.ErrGroupNotFound
	}
	return group, nil
}

func (s *fakeStore) ListGroupJIDs(ctx context.Context, instance string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jids []string
	for jid := range s.chats {
		jids = append(jids, jid)
	}
	return jids, nil
}

func (s *fakeStore) UpsertContact(ctx context.Context, contact models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.JID] = true
	return nil
}

func (s *fakeStore) EnsureContact(ctx context.Context, instance, jid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "contact:"+jid)
	s.contacts[jid] = true
	return nil
}

func (s *fakeStore) GetContact(ctx context.Context, instance, jid string) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.contacts[jid] {
		return models.Contact{}, repositories.ErrContactNotFound
	}
	return models.Contact{Instance: instance, JID: jid}, nil
}

func (s *fakeStore) UpsertChat(ctx context.Context, chat models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[chat.JID] = chat
	return nil
}

func (s *fakeStore) EnsureChat(ctx context.Context, instance, jid, chatType, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[jid]; !ok {
		s.chats[jid] = models.Chat{Instance: instance, JID: jid, Type: chatType, Subject: subject}
	}
	return nil
}

func (s *fakeStore) UpdateChatSubject(ctx context.Context, instance, jid, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[jid]; ok {
		chat.Subject = subject
		s.chats[jid] = chat
	}
	return nil
}

func (s *fakeStore) BumpLastMessage(ctx context.Context, instance, jid string, at time.Time) error {
	return nil
}

func (s *fakeStore) GetChat(ctx context.Context, instance, jid string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[jid]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

type fakeHub struct {
	mu     sync.Mutex
	events []models.Notification
}

func (h *fakeHub) Publish(eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, models.Notification{Type: eventType, Payload: payload})
}

func newTestReconciler(fetcher *fakeFetcher, store *fakeStore, hub *fakeHub) *Reconciler {
	return New(fetcher, persistence.NewGateway(2), store, store, store, hub, nil, Config{
		Debounce:   10 * time.Millisecond,
		BatchDelay: time.Millisecond,
		Timeout:    time.Second,
	})
}

func TestReconcileUpdatesPlaceholderSubjectAndNotifiesOnce(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{
		{ID: "777@g.us", Subject: "Team Alpha", Owner: "7@s.whatsapp.net"},
	}}
	store := newFakeStore()
	store.chats["777@g.us"] = models.Chat{Instance: "main", JID: "777@g.us", Type: models.ChatTypeGroup, Subject: models.PlaceholderSubject}
	hub := &fakeHub{}
	r := newTestReconciler(fetcher, store, hub)

	updated, err := r.ReconcileGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.True(t, updated)

	group, err := store.GetGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.Equal(t, "Team Alpha", group.Subject)

	chat, err := store.GetChat(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.Equal(t, "Team Alpha", chat.Subject)

	require.Len(t, hub.events, 1)
	require.Equal(t, models.NotifyGroupUpdate, hub.events[0].Type)
	payload, ok := hub.events[0].Payload.(models.GroupUpdatePayload)
	require.True(t, ok)
	require.Equal(t, models.PlaceholderSubject, payload.OldSubject)
	require.Equal(t, "Team Alpha", payload.NewSubject)
}

func TestReconcileSkipsPlaceholderUpstreamSubject(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{
		{ID: "777@g.us", Subject: models.PlaceholderSubject},
	}}
	store := newFakeStore()
	store.groups["777@g.us"] = models.Group{Instance: "main", JID: "777@g.us", Subject: "Real Name"}
	hub := &fakeHub{}
	r := newTestReconciler(fetcher, store, hub)

	updated, err := r.ReconcileGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.False(t, updated)

	group, err := store.GetGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.Equal(t, "Real Name", group.Subject)
	require.Empty(t, hub.events)
}

func TestReconcileSkipsEmptySubject(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{{ID: "777@g.us", Subject: ""}}}
	store := newFakeStore()
	r := newTestReconciler(fetcher, store, &fakeHub{})

	updated, err := r.ReconcileGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.False(t, updated)
}

func TestReconcileUnknownGroupIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{{ID: "other@g.us", Subject: "X"}}}
	store := newFakeStore()
	r := newTestReconciler(fetcher, store, &fakeHub{})

	updated, err := r.ReconcileGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.False(t, updated)
	require.Empty(t, store.groups)
}

func TestReconcileUpsertsOwnerBeforeGroup(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{
		{ID: "777@g.us", Subject: "Team Alpha", Owner: "7@s.whatsapp.net"},
	}}
	store := newFakeStore()
	r := newTestReconciler(fetcher, store, &fakeHub{})

	_, err := r.ReconcileGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.Equal(t, []string{"contact:7@s.whatsapp.net", "group:777@g.us"}, store.ops)
}

func TestReconcileNoNotificationWhenSubjectUnchanged(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{{ID: "777@g.us", Subject: "Team Alpha"}}}
	store := newFakeStore()
	store.groups["777@g.us"] = models.Group{Instance: "main", JID: "777@g.us", Subject: "Team Alpha"}
	hub := &fakeHub{}
	r := newTestReconciler(fetcher, store, hub)

	updated, err := r.ReconcileGroup(context.Background(), "main", "777@g.us")
	require.NoError(t, err)
	require.True(t, updated)
	require.Empty(t, hub.events)
}

func TestReconcileAllCountsAndSurvivesFailures(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{
		{ID: "1@g.us", Subject: "One"},
		{ID: "2@g.us", Subject: "Two"},
		{ID: "3@g.us", Subject: ""},
	}}
	store := newFakeStore()
	store.failJIDs["2@g.us"] = true
	r := newTestReconciler(fetcher, store, &fakeHub{})

	updated, total := r.ReconcileAll(context.Background(), "main", []string{"1@g.us", "2@g.us", "3@g.us"})
	require.Equal(t, 3, total)
	require.Equal(t, 1, updated)
}

func TestTriggerDebouncesRepeatedActivity(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{{ID: "1@g.us", Subject: "One"}}}
	store := newFakeStore()
	r := newTestReconciler(fetcher, store, &fakeHub{})

	for i := 0; i < 5; i++ {
		r.Trigger("main", "1@g.us")
	}

	require.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.calls == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	require.Equal(t, 1, fetcher.calls)
}

func TestShutdownCancelsPendingTriggers(t *testing.T) {
	fetcher := &fakeFetcher{groups: []platform.Group{{ID: "1@g.us", Subject: "One"}}}
	store := newFakeStore()
	r := newTestReconciler(fetcher, store, &fakeHub{})

	r.Trigger("main", "1@g.us")
	r.Shutdown()
	r.Trigger("main", "1@g.us")

	time.Sleep(50 * time.Millisecond)
	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	require.Equal(t, 0, fetcher.calls)
}
