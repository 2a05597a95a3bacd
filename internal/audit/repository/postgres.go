package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"records-dashboard/backend/internal/audit/domain"
	"records-dashboard/backend/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an audit event repository that uses the given pool for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

var _ Repository = (*PostgresRepository)(nil)

const eventColumns = `id, org_id, actor_id, action, target_type, target_id, outcome, metadata, ip, created_at`

// GetByID returns the audit event for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM audit_events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListByOrg returns audit events for the given org, newest first, paginated by limit and offset.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE org_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create persists the audit event. The event must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		meta = b
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.OrgID, e.ActorID, e.Action, e.TargetType, e.TargetID, e.Outcome, meta, e.IP, e.Timestamp)
	if err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var meta []byte
	if err := row.Scan(&e.ID, &e.OrgID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Outcome, &meta, &e.IP, &e.Timestamp); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return &e, nil
}
