package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-policy/internal/core/domain"
	"github.com/arklim/social-platform-policy/internal/core/port"
)

const defaultHierarchyCachePrefix = "policy:effective_permissions"

// HierarchyCache stores resolved effective permission snapshots per role in
// Redis so multiple replicas share one cache. Entries are JSON documents
// with a TTL; invalidation is a per-key DEL.
type HierarchyCache struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewHierarchyCache constructs a Redis-backed hierarchy cache.
func NewHierarchyCache(client *red.Client, keyPrefix string, ttl time.Duration) *HierarchyCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultHierarchyCachePrefix
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &HierarchyCache{client: client, prefix: prefix, ttl: ttl}
}

// Get fetches the cached snapshot for a role, reporting a miss when absent.
func (c *HierarchyCache) Get(ctx context.Context, roleID string) ([]domain.EffectivePermission, bool, error) {
	key := c.key(roleID)
	if key == "" {
		return nil, false, fmt.Errorf("role id is required")
	}

	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get effective permissions: %w", err)
	}

	var permissions []domain.EffectivePermission
	if err := json.Unmarshal(value, &permissions); err != nil {
		return nil, false, fmt.Errorf("decode cached effective permissions: %w", err)
	}

	return permissions, true, nil
}

// Set stores the snapshot for a role with the configured TTL.
func (c *HierarchyCache) Set(ctx context.Context, roleID string, permissions []domain.EffectivePermission) error {
	key := c.key(roleID)
	if key == "" {
		return fmt.Errorf("role id is required")
	}

	encoded, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("encode effective permissions: %w", err)
	}

	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set effective permissions: %w", err)
	}
	return nil
}

// Invalidate removes the cached snapshots for the given roles.
func (c *HierarchyCache) Invalidate(ctx context.Context, roleIDs ...string) error {
	keys := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if key := c.key(roleID); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete effective permissions: %w", err)
	}
	return nil
}

func (c *HierarchyCache) key(roleID string) string {
	trimmed := strings.TrimSpace(roleID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}

var _ port.HierarchyCache = (*HierarchyCache)(nil)
