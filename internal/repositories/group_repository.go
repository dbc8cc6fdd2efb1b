package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"wa-sync-service/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository abstracts group metadata persistence.
type GroupRepository interface {
	UpsertGroup(ctx context.Context, group models.Group) error
	GetGroup(ctx context.Context, instance, jid string) (models.Group, error)
	ListGroupJIDs(ctx context.Context, instance string) ([]string, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// UpsertGroup inserts or updates reconciled group metadata. The owner contact
// must exist before this is called; groups carry a foreign key to contacts.
func (r *GroupRepo) UpsertGroup(ctx context.Context, group models.Group) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO groups (instance, jid, subject, owner_jid, description, locked, platform_created_at, updated_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NOW())
        ON CONFLICT (instance, jid) DO UPDATE SET
            subject = EXCLUDED.subject,
            owner_jid = COALESCE(EXCLUDED.owner_jid, groups.owner_jid),
            description = EXCLUDED.description,
            locked = EXCLUDED.locked,
            platform_created_at = COALESCE(EXCLUDED.platform_created_at, groups.platform_created_at),
            updated_at = NOW()`,
		group.Instance, group.JID, group.Subject, group.OwnerJID, group.Description, group.Locked, group.PlatformCreatedAt)
	return err
}

// GetGroup fetches group metadata by its natural key.
func (r *GroupRepo) GetGroup(ctx context.Context, instance, jid string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, instance, jid, subject, COALESCE(owner_jid, '') AS owner_jid, description, locked, platform_created_at, updated_at
        FROM groups WHERE instance=$1 AND jid=$2`, instance, jid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroupJIDs returns the jids of all group chats known for an instance.
func (r *GroupRepo) ListGroupJIDs(ctx context.Context, instance string) ([]string, error) {
	var jids []string
	err := r.db.SelectContext(ctx, &jids, `SELECT jid FROM chats WHERE instance=$1 AND type='group' ORDER BY jid`, instance)
	return jids, err
}
