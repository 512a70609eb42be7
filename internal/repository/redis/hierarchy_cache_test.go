package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestHierarchyCache_SetGetRoundTrip(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewHierarchyCache(client, "test:perms", time.Minute)

	ctx := context.Background()
	snapshot := []domain.EffectivePermission{
		{Permission: domain.Permission{ID: "p1", ResourceType: "article", Operation: "update"}},
		{Permission: domain.Permission{ID: "p2", ResourceType: "article", Operation: "publish"}, InheritedFrom: "editor"},
	}

	if _, hit, err := cache.Get(ctx, "senior-editor"); err != nil || hit {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	if err := cache.Set(ctx, "senior-editor", snapshot); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	cached, hit, err := cache.Get(ctx, "senior-editor")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached permissions, got %d", len(cached))
	}
	if cached[1].InheritedFrom != "editor" {
		t.Fatalf("provenance lost in cache: %+v", cached[1])
	}
}

func TestHierarchyCache_InvalidateIsPerKey(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewHierarchyCache(client, "test:perms", time.Minute)

	ctx := context.Background()
	snapshot := []domain.EffectivePermission{
		{Permission: domain.Permission{ID: "p1", ResourceType: "article", Operation: "read"}},
	}

	if err := cache.Set(ctx, "editor", snapshot); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := cache.Set(ctx, "viewer", snapshot); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	if err := cache.Invalidate(ctx, "editor"); err != nil {
		t.Fatalf("Invalidate returned error: %v", err)
	}

	if _, hit, _ := cache.Get(ctx, "editor"); hit {
		t.Fatal("invalidated entry still cached")
	}
	if _, hit, _ := cache.Get(ctx, "viewer"); !hit {
		t.Fatal("unrelated entry was invalidated")
	}
}

func TestHierarchyCache_EntriesExpire(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewHierarchyCache(client, "test:perms", time.Minute)

	ctx := context.Background()
	if err := cache.Set(ctx, "editor", nil); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	server.FastForward(2 * time.Minute)

	if _, hit, err := cache.Get(ctx, "editor"); err != nil || hit {
		t.Fatalf("expected expired miss, got hit=%v err=%v", hit, err)
	}
}
