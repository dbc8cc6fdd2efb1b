package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"wa-sync-service/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	UpsertChat(ctx context.Context, chat models.Chat) error
	EnsureChat(ctx context.Context, instance, jid, chatType, subject string) error
	UpdateChatSubject(ctx context.Context, instance, jid, subject string) error
	BumpLastMessage(ctx context.Context, instance, jid string, at time.Time) error
	GetChat(ctx context.Context, instance, jid string) (models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// UpsertChat inserts or updates a chat. The subject is only replaced by a
// non-empty incoming value; flags and counters are last-write-wins.
func (r *ChatRepo) UpsertChat(ctx context.Context, chat models.Chat) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chats (instance, jid, type, subject, unread_count, archived, pinned, muted, last_message_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (instance, jid) DO UPDATE SET
            type = EXCLUDED.type,
            subject = COALESCE(NULLIF(EXCLUDED.subject, ''), chats.subject),
            unread_count = EXCLUDED.unread_count,
            archived = EXCLUDED.archived,
            pinned = EXCLUDED.pinned,
            muted = EXCLUDED.muted,
            last_message_at = GREATEST(COALESCE(EXCLUDED.last_message_at, chats.last_message_at), chats.last_message_at)`,
		chat.Instance, chat.JID, chat.Type, chat.Subject, chat.UnreadCount, chat.Archived, chat.Pinned, chat.Muted, chat.LastMessageAt)
	return err
}

// EnsureChat creates a placeholder chat if none exists yet. This is a valid
// lifecycle state for chats whose metadata has not been seen.
func (r *ChatRepo) EnsureChat(ctx context.Context, instance, jid, chatType, subject string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO chats (instance, jid, type, subject) VALUES ($1, $2, $3, $4)
        ON CONFLICT (instance, jid) DO NOTHING`, instance, jid, chatType, subject)
	return err
}

// UpdateChatSubject sets the chat subject outright (reconciler path).
func (r *ChatRepo) UpdateChatSubject(ctx context.Context, instance, jid, subject string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET subject=$3 WHERE instance=$1 AND jid=$2`, instance, jid, subject)
	return err
}

// BumpLastMessage advances the chat's last-message timestamp, never backwards.
func (r *ChatRepo) BumpLastMessage(ctx context.Context, instance, jid string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET last_message_at = GREATEST(COALESCE(last_message_at, $3), $3)
        WHERE instance=$1 AND jid=$2`, instance, jid, at)
	return err
}

// GetChat fetches a chat by its natural key.
func (r *ChatRepo) GetChat(ctx context.Context, instance, jid string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT id, instance, jid, type, subject, unread_count, archived, pinned, muted, last_message_at, created_at
        FROM chats WHERE instance=$1 AND jid=$2`, instance, jid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}
