package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/repositories"
)

// memStore implements the repository interfaces with the same upsert
// semantics as the SQL layer, so router behavior can be exercised statefully.
type memStore struct {
	mu        sync.Mutex
	messages  map[string]models.Message
	contacts  map[string]models.Contact
	chats     map[string]models.Chat
	instances map[string]models.Instance

	failMessageIDs map[string]bool
	nextID         int
}

func newMemStore() *memStore {
	return &memStore{
		messages:       map[string]models.Message{},
		contacts:       map[string]models.Contact{},
		chats:          map[string]models.Chat{},
		instances:      map[string]models.Instance{},
		failMessageIDs: map[string]bool{},
	}
}

func key(instance, id string) string { return instance + "|" + id }

func (s *memStore) UpsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMessageIDs[msg.ExternalID] {
		return models.Message{}, errors.New("simulated write failure")
	}
	k := key(msg.Instance, msg.ExternalID)
	if existing, ok := s.messages[k]; ok {
		msg.ID = existing.ID
		msg.CreatedAt = existing.CreatedAt
		if models.StatusRank(msg.Status) <= models.StatusRank(existing.Status) {
			msg.Status = existing.Status
		}
	} else {
		s.nextID++
		msg.ID = s.nextID
		msg.CreatedAt = time.Now()
	}
	s.messages[k] = msg
	return msg, nil
}

func (s *memStore) UpdateMessageStatus(ctx context.Context, instance, externalID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(instance, externalID)
	msg, ok := s.messages[k]
	if !ok {
		return repositories.ErrMessageNotFound
	}
	if models.StatusRank(status) > models.StatusRank(msg.Status) {
		msg.Status = status
		s.messages[k] = msg
	}
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, instance, externalID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[key(instance, externalID)]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return msg, nil
}

func (s *memStore) UpsertContact(ctx context.Context, contact models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(contact.Instance, contact.JID)
	if existing, ok := s.contacts[k]; ok {
		if contact.Name == "" {
			contact.Name = existing.Name
		}
		if contact.ProfilePictureURL == "" {
			contact.ProfilePictureURL = existing.ProfilePictureURL
		}
		if contact.IsBusiness == nil {
			contact.IsBusiness = existing.IsBusiness
		}
		if contact.IsBlocked == nil {
			contact.IsBlocked = existing.IsBlocked
		}
		contact.ID = existing.ID
	} else {
		s.nextID++
		contact.ID = s.nextID
	}
	falseFlag := false
	if contact.IsBusiness == nil {
		contact.IsBusiness = &falseFlag
	}
	if contact.IsBlocked == nil {
		contact.IsBlocked = &falseFlag
	}
	contact.UpdatedAt = time.Now()
	s.contacts[k] = contact
	return nil
}

func (s *memStore) EnsureContact(ctx context.Context, instance, jid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(instance, jid)
	if _, ok := s.contacts[k]; !ok {
		s.nextID++
		falseFlag := false
		s.contacts[k] = models.Contact{ID: s.nextID, Instance: instance, JID: jid, IsBusiness: &falseFlag, IsBlocked: &falseFlag}
	}
	return nil
}

func (s *memStore) GetContact(ctx context.Context, instance, jid string) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[key(instance, jid)]
	if !ok {
		return models.Contact{}, repositories.ErrContactNotFound
	}
	return contact, nil
}

func (s *memStore) UpsertChat(ctx context.Context, chat models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(chat.Instance, chat.JID)
	if existing, ok := s.chats[k]; ok {
		if chat.Subject == "" {
			chat.Subject = existing.Subject
		}
		if chat.LastMessageAt == nil || (existing.LastMessageAt != nil && existing.LastMessageAt.After(*chat.LastMessageAt)) {
			chat.LastMessageAt = existing.LastMessageAt
		}
		chat.ID = existing.ID
	} else {
		s.nextID++
		chat.ID = s.nextID
	}
	s.chats[k] = chat
	return nil
}

func (s *memStore) EnsureChat(ctx context.Context, instance, jid, chatType, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(instance, jid)
	if _, ok := s.chats[k]; !ok {
		s.nextID++
		s.chats[k] = models.Chat{ID: s.nextID, Instance: instance, JID: jid, Type: chatType, Subject: subject}
	}
	return nil
}

func (s *memStore) UpdateChatSubject(ctx context.Context, instance, jid, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(instance, jid)
	if chat, ok := s.chats[k]; ok {
		chat.Subject = subject
		s.chats[k] = chat
	}
	return nil
}

func (s *memStore) BumpLastMessage(ctx context.Context, instance, jid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(instance, jid)
	if chat, ok := s.chats[k]; ok {
		if chat.LastMessageAt == nil || at.After(*chat.LastMessageAt) {
			chat.LastMessageAt = &at
		}
		s.chats[k] = chat
	}
	return nil
}

func (s *memStore) GetChat(ctx context.Context, instance, jid string) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[key(instance, jid)]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (s *memStore) UpsertConnectionState(ctx context.Context, name, state string, connectedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	if !ok {
		s.nextID++
		inst = models.Instance{ID: s.nextID, Name: name}
	}
	inst.ConnectionState = state
	if connectedAt != nil {
		inst.LastConnectedAt = connectedAt
	}
	inst.UpdatedAt = time.Now()
	s.instances[name] = inst
	return nil
}

func (s *memStore) GetInstance(ctx context.Context, name string) (models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	if !ok {
		return models.Instance{}, repositories.ErrInstanceNotFound
	}
	return inst, nil
}

// fakeHub records published notifications.
type fakeHub struct {
	mu     sync.Mutex
	events []models.Notification
}

func (h *fakeHub) Publish(eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, models.Notification{Type: eventType, Payload: payload})
}

func (h *fakeHub) byType(eventType string) []models.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Notification
	for _, ev := range h.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// fakeTrigger records reconcile triggers.
type fakeTrigger struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTrigger) Trigger(instance, groupJID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, instance+"|"+groupJID)
}
