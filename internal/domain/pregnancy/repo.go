package pregnancy

import (
	"context"

	"github.com/google/uuid"
)

// TransferRepository persists transfers together with their tracking.
// Unknown ids yield ErrNotFound. UpdateTracking fails with ErrConflict when
// the stored version differs from expectedVersion.
type TransferRepository interface {
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error)
	List(ctx context.Context, filter TransferFilter, limit, offset int) ([]*Transfer, int, error)
	UpdateTracking(ctx context.Context, id uuid.UUID, tracking *Tracking, expectedVersion int) error
	Delete(ctx context.Context, id uuid.UUID) error
}
