package snapshot

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/go-places-chat/internal/types"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps snapshots in process memory. A zero ttl keeps them
// until they are deleted.
type MemoryRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
	}
	return &MemoryRepository{
		cache: cache.New(expiration, cleanup),
		ttl:   expiration,
		now:   utcNow,
	}
}

func (r *MemoryRepository) Save(_ context.Context, s types.CandidateSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s.CreatedAt = now
	if prev, ok := r.cache.Get(s.SessionID.String()); ok {
		s.CreatedAt = prev.(types.CandidateSnapshot).CreatedAt
	}
	s.UpdatedAt = now
	s.Candidates = slices.Clone(s.Candidates)
	r.cache.Set(s.SessionID.String(), s, r.ttl)
	return nil
}

func (r *MemoryRepository) Load(_ context.Context, sessionID uuid.UUID) (*types.CandidateSnapshot, error) {
	v, ok := r.cache.Get(sessionID.String())
	if !ok {
		return nil, types.ErrSnapshotNotFound
	}
	s := v.(types.CandidateSnapshot)
	s.Candidates = slices.Clone(s.Candidates)
	return &s, nil
}

func (r *MemoryRepository) List(_ context.Context, limit int) ([]types.SessionSummary, error) {
	items := r.cache.Items()
	list := make([]types.SessionSummary, 0, len(items))
	for _, item := range items {
		list = append(list, summarize(item.Object.(types.CandidateSnapshot)))
	}
	return newestFirst(list, limit), nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cache.Get(sessionID.String()); !ok {
		return types.ErrSnapshotNotFound
	}
	r.cache.Delete(sessionID.String())
	return nil
}
