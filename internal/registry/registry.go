package registry

import (
	"context"
	"fmt"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

// Registry hands the pipeline a read-only snapshot of monitored targets.
type Registry interface {
	ListTargets(ctx context.Context) ([]domain.Target, error)
}

// Store is the metadata CRUD surface used by the HTTP API.
type Store interface {
	Registry
	AddTarget(ctx context.Context, t *domain.Target) error
	GetTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	DeleteTarget(ctx context.Context, id domain.TargetID) error
	AddRegion(ctx context.Context, r *domain.Region) error
	ListRegions(ctx context.Context) ([]domain.Region, error)
}

// Unavailable wraps err so callers can match domain.ErrRegistryUnavailable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
}
