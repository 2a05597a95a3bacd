package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	auditrepo "records-dashboard/backend/internal/audit/repository"
	"records-dashboard/backend/internal/db"
	invitationrepo "records-dashboard/backend/internal/invitation/repository"
	membershiprepo "records-dashboard/backend/internal/membership/repository"
	orgrepo "records-dashboard/backend/internal/organization/repository"
	transferrepo "records-dashboard/backend/internal/transfer/repository"
)

// Postgres is a Store backed by a pgx pool.
type Postgres struct {
	pool  *pgxpool.Pool
	repos Repos
}

// NewPostgres returns a Store over pool. The caller owns the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, repos: reposFor(pool)}
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) Repos() Repos { return p.repos }

// WithinTx runs fn in a read-committed transaction. Row locks taken by the repositories
// (owner rows, the organization row) are held until commit or rollback.
func (p *Postgres) WithinTx(ctx context.Context, fn func(Repos) error) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(reposFor(tx))
	})
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func reposFor(conn db.DBTX) Repos {
	return Repos{
		Orgs:        orgrepo.NewPostgresRepository(conn),
		Members:     membershiprepo.NewPostgresRepository(conn),
		Invitations: invitationrepo.NewPostgresRepository(conn),
		Transfers:   transferrepo.NewPostgresRepository(conn),
		Audit:       auditrepo.NewPostgresRepository(conn),
	}
}
