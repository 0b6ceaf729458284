package scheduler

import (
	"context"

	"hangar/pkg/domain"
)

// RunStore persists batch runs so operators can inspect a batch after the
// fact. The memory store is the default; the Postgres store keeps history
// across restarts.
//
// Implementations speak sentinel errors: Create on an existing ID returns
// sentinel.ErrConflict, Update and Get on a missing ID return
// sentinel.ErrNotFound.
type RunStore interface {
	Create(ctx context.Context, run BatchRun) error
	Update(ctx context.Context, run BatchRun) error
	Get(ctx context.Context, id domain.BatchID) (BatchRun, error)
	// List returns the most recently started runs, newest first.
	List(ctx context.Context, limit int) ([]BatchRun, error)
}
