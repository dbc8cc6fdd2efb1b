package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"wa-sync-service/internal/models"
)

var ErrInstanceNotFound = errors.New("instance not found")

// InstanceRepository abstracts per-instance connection state.
type InstanceRepository interface {
	UpsertConnectionState(ctx context.Context, name, state string, connectedAt *time.Time) error
	GetInstance(ctx context.Context, name string) (models.Instance, error)
}

// InstanceRepo is a sqlx implementation of InstanceRepository.
type InstanceRepo struct {
	db *sqlx.DB
}

// NewInstanceRepo constructs an InstanceRepo.
func NewInstanceRepo(db *sqlx.DB) *InstanceRepo {
	return &InstanceRepo{db: db}
}

// UpsertConnectionState records a connection transition. The last-connected
// stamp is only written when provided; a close transition keeps the previous
// value.
func (r *InstanceRepo) UpsertConnectionState(ctx context.Context, name, state string, connectedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO instances (name, connection_state, last_connected_at, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (name) DO UPDATE SET
            connection_state = EXCLUDED.connection_state,
            last_connected_at = COALESCE(EXCLUDED.last_connected_at, instances.last_connected_at),
            updated_at = NOW()`,
		name, state, connectedAt)
	return err
}

// GetInstance fetches an instance record by name.
func (r *InstanceRepo) GetInstance(ctx context.Context, name string) (models.Instance, error) {
	var instance models.Instance
	err := r.db.GetContext(ctx, &instance, `SELECT id, name, connection_state, last_connected_at, updated_at
        FROM instances WHERE name=$1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Instance{}, ErrInstanceNotFound
	}
	return instance, err
}
