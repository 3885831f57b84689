package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimeticks/internal/domain"
	"github.com/hamed0406/uptimeticks/internal/registry"
)

type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]domain.Target
	regions map[string]domain.Region
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]domain.Target),
		regions: make(map[string]domain.Region),
	}
}

func (m *Store) AddTarget(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.targets {
		if existing.URL == t.URL {
			return domain.ErrDuplicate
		}
	}
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = *t
	return nil
}

// ListTargets returns a copy ordered by creation time so callers never
// share memory with the store.
func (m *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) GetTarget(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *Store) DeleteTarget(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.targets, id)
	return nil
}

func (m *Store) AddRegion(ctx context.Context, r *domain.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.regions {
		if existing.Name == r.Name {
			return domain.ErrDuplicate
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.regions[r.ID] = *r
	return nil
}

func (m *Store) ListRegions(ctx context.Context) ([]domain.Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var _ registry.Store = (*Store)(nil)
