package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"wa-sync-service/internal/models"
)

var ErrContactNotFound = errors.New("contact not found")

// ContactRepository abstracts contact persistence.
type ContactRepository interface {
	UpsertContact(ctx context.Context, contact models.Contact) error
	EnsureContact(ctx context.Context, instance, jid string) error
	GetContact(ctx context.Context, instance, jid string) (models.Contact, error)
}

// ContactRepo is a sqlx implementation of ContactRepository.
type ContactRepo struct {
	db *sqlx.DB
}

// NewContactRepo constructs a ContactRepo.
func NewContactRepo(db *sqlx.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// UpsertContact inserts or updates a contact. Empty incoming name/avatar
// values never overwrite previously stored non-empty ones, and a NULL flag
// (not reported by the event) keeps the stored flag.
func (r *ContactRepo) UpsertContact(ctx context.Context, contact models.Contact) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO contacts (instance, jid, name, profile_picture_url, is_business, is_blocked, updated_at)
        VALUES ($1, $2, $3, $4, COALESCE($5, FALSE), COALESCE($6, FALSE), NOW())
        ON CONFLICT (instance, jid) DO UPDATE SET
            name = COALESCE(NULLIF(EXCLUDED.name, ''), contacts.name),
            profile_picture_url = COALESCE(NULLIF(EXCLUDED.profile_picture_url, ''), contacts.profile_picture_url),
            is_business = COALESCE($5, contacts.is_business),
            is_blocked = COALESCE($6, contacts.is_blocked),
            updated_at = NOW()`,
		contact.Instance, contact.JID, contact.Name, contact.ProfilePictureURL, contact.IsBusiness, contact.IsBlocked)
	return err
}

// EnsureContact creates a minimal placeholder row so that rows referencing
// the jid satisfy their foreign keys. Existing contacts are left untouched.
func (r *ContactRepo) EnsureContact(ctx context.Context, instance, jid string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO contacts (instance, jid) VALUES ($1, $2)
        ON CONFLICT (instance, jid) DO NOTHING`, instance, jid)
	return err
}

// GetContact fetches a contact by its natural key.
func (r *ContactRepo) GetContact(ctx context.Context, instance, jid string) (models.Contact, error) {
	var contact models.Contact
	err := r.db.GetContext(ctx, &contact, `SELECT id, instance, jid, name, profile_picture_url, is_business, is_blocked, updated_at
        FROM contacts WHERE instance=$1 AND jid=$2`, instance, jid)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Contact{}, ErrContactNotFound
	}
	return contact, err
}
