package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/arklim/social-platform-policy/internal/core/domain"
)

func TestHierarchyCache_SetGetRoundTrip(t *testing.T) {
	cache := NewHierarchyCache()
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
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if len(cached) != 2 || cached[1].InheritedFrom != "editor" {
		t.Fatalf("unexpected cached snapshot: %+v", cached)
	}
}

func TestHierarchyCache_GetReturnsCopy(t *testing.T) {
	cache := NewHierarchyCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "editor", []domain.EffectivePermission{
		{Permission: domain.Permission{ID: "p1", ResourceType: "article", Operation: "read"}},
	}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	first, _, _ := cache.Get(ctx, "editor")
	first[0].Permission.ID = "mutated"

	second, _, _ := cache.Get(ctx, "editor")
	if second[0].Permission.ID != "p1" {
		t.Fatal("caller mutation leaked into the cache")
	}
}

func TestHierarchyCache_InvalidateIsPerKey(t *testing.T) {
	cache := NewHierarchyCache()
	ctx := context.Background()

	_ = cache.Set(ctx, "editor", nil)
	_ = cache.Set(ctx, "viewer", nil)

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

func TestHierarchyCache_ConcurrentAccess(t *testing.T) {
	cache := NewHierarchyCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			roleID := fmt.Sprintf("role-%d", n%4)
			for j := 0; j < 100; j++ {
				_ = cache.Set(ctx, roleID, []domain.EffectivePermission{
					{Permission: domain.Permission{ID: "p1", ResourceType: "article", Operation: "read"}},
				})
				_, _, _ = cache.Get(ctx, roleID)
				_ = cache.Invalidate(ctx, roleID)
			}
		}(i)
	}
	wg.Wait()
}
