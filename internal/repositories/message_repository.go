package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"wa-sync-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	UpsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	UpdateMessageStatus(ctx context.Context, instance, externalID, status string) error
	GetMessage(ctx context.Context, instance, externalID string) (models.Message, error)
}

// MessageRepo is a sqlx implementation of MessageRepository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// UpsertMessage inserts a message or updates it in place when the same
// (instance, external_id) key is delivered again. The status column only
// moves forward.
func (r *MessageRepo) UpsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	query := `INSERT INTO messages (instance, external_id, chat_jid, sender_jid, direction, type, content, status, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (instance, external_id) DO UPDATE SET
            chat_jid = EXCLUDED.chat_jid,
            sender_jid = EXCLUDED.sender_jid,
            direction = EXCLUDED.direction,
            type = EXCLUDED.type,
            content = EXCLUDED.content,
            status = CASE WHEN (CASE EXCLUDED.status WHEN 'pending' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3 WHEN 'read' THEN 4 ELSE 0 END)
                > (CASE messages.status WHEN 'pending' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3 WHEN 'read' THEN 4 ELSE 0 END)
                THEN EXCLUDED.status ELSE messages.status END,
            timestamp = EXCLUDED.timestamp
        RETURNING id, instance, external_id, chat_jid, sender_jid, direction, type, content, status, timestamp, created_at`
	var out models.Message
	err := r.db.QueryRowxContext(ctx, query,
		msg.Instance, msg.ExternalID, msg.ChatJID, msg.SenderJID, msg.Direction, msg.Type, msg.Content, msg.Status, msg.Timestamp).
		StructScan(&out)
	return out, err
}

// UpdateMessageStatus applies a delivery-status transition. It returns
// ErrMessageNotFound when no message exists for the key; a status that would
// regress the stored one is a silent no-op.
func (r *MessageRepo) UpdateMessageStatus(ctx context.Context, instance, externalID, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET status=$3
        WHERE instance=$1 AND external_id=$2
        AND (CASE $3 WHEN 'pending' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3 WHEN 'read' THEN 4 ELSE 0 END)
          > (CASE status WHEN 'pending' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3 WHEN 'read' THEN 4 ELSE 0 END)`,
		instance, externalID, status)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE instance=$1 AND external_id=$2)`, instance, externalID); err != nil {
		return err
	}
	if !exists {
		return ErrMessageNotFound
	}
	return nil
}

// GetMessage retrieves a single message by its natural key.
func (r *MessageRepo) GetMessage(ctx context.Context, instance, externalID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, instance, external_id, chat_jid, sender_jid, direction, type, content, status, timestamp, created_at
        FROM messages WHERE instance=$1 AND external_id=$2`, instance, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
