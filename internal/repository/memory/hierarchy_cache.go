package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
)

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[string][]domain.EffectivePermission
}

// HierarchyCache is an in-process cache of resolved effective permission
// snapshots. Keys are sharded so invalidating one role never blocks
// concurrent reads of roles in other shards.
type HierarchyCache struct {
	shards [shardCount]*shard
}

// NewHierarchyCache constructs an in-process hierarchy cache.
func NewHierarchyCache() *HierarchyCache {
	cache := &HierarchyCache{}
	for i := range cache.shards {
		cache.shards[i] = &shard{entries: make(map[string][]domain.EffectivePermission)}
	}
	return cache
}

// Get returns the cached snapshot for a role, reporting a miss when absent.
func (c *HierarchyCache) Get(_ context.Context, roleID string) ([]domain.EffectivePermission, bool, error) {
	s := c.shardFor(roleID)
	s.mu.RLock()
	entry, ok := s.entries[roleID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	// Copy on read so callers cannot mutate the shared snapshot.
	snapshot := make([]domain.EffectivePermission, len(entry))
	copy(snapshot, entry)
	return snapshot, true, nil
}

// Set stores the snapshot for a role.
func (c *HierarchyCache) Set(_ context.Context, roleID string, permissions []domain.EffectivePermission) error {
	snapshot := make([]domain.EffectivePermission, len(permissions))
	copy(snapshot, permissions)

	s := c.shardFor(roleID)
	s.mu.Lock()
	s.entries[roleID] = snapshot
	s.mu.Unlock()
	return nil
}

// Invalidate removes the cached snapshots for the given roles.
func (c *HierarchyCache) Invalidate(_ context.Context, roleIDs ...string) error {
	for _, roleID := range roleIDs {
		s := c.shardFor(roleID)
		s.mu.Lock()
		delete(s.entries, roleID)
		s.mu.Unlock()
	}
	return nil
}

func (c *HierarchyCache) shardFor(roleID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roleID))
	return c.shards[h.Sum32()%shardCount]
}

var _ port.HierarchyCache = (*HierarchyCache)(nil)
