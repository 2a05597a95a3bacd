package repository

import (
	"context"
	"time"

	"records-dashboard/backend/internal/transfer/domain"
)

// Repository defines persistence for ownership transfers.
type Repository interface {
	GetTransferByID(ctx context.Context, orgID, id string) (*domain.Transfer, error)
	// GetTransferByTokenHash resolves a transfer from the hash of its token, or nil if none matches.
	GetTransferByTokenHash(ctx context.Context, tokenHash string) (*domain.Transfer, error)
	// ListPendingByOrg returns transfers whose stored status is pending, expired ones included.
	ListPendingByOrg(ctx context.Context, orgID string) ([]*domain.Transfer, error)
	CreateTransfer(ctx context.Context, t *domain.Transfer) error
	// MarkAccepted moves a pending, unexpired transfer to accepted and reports whether it did.
	MarkAccepted(ctx context.Context, orgID, id string, at time.Time) (bool, error)
	// MarkCancelled moves a pending transfer to cancelled. Returns nil when it was not pending.
	MarkCancelled(ctx context.Context, orgID, id string, at time.Time) (*domain.Transfer, error)
}
