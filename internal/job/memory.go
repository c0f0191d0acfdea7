package job

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// Records do not survive a restart; use RedisRepository for that.
type MemoryRepository struct {
	mu          sync.RWMutex
	generations map[string]*Generation
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		generations: make(map[string]*Generation),
	}
}

// Save stores a clone of g.
func (r *MemoryRepository) Save(_ context.Context, g *Generation) error {
	c := g.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations[c.ID] = c
	return nil
}

// FindByID returns a clone of the stored record.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Generation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

// ListByOwner returns clones of ownerID's records, newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*Generation, error) {
	r.mu.RLock()
	result := make([]*Generation, 0)
	for _, g := range r.generations {
		if g.OwnerID == ownerID {
			result = append(result, g.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a record.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generations[id]; !ok {
		return ErrNotFound
	}
	delete(r.generations, id)
	return nil
}
