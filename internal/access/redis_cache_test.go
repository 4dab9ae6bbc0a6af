package access

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
)

func setupTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), DefaultTTL)
	if err != nil {
		t.Fatalf("create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestRedisCachePutGet(t *testing.T) {
	cache := setupTestRedis(t)
	ctx := context.Background()

	entry := Entry{
		Context: Context{
			OrganizationIDs: []string{"org-a"},
			ChannelIDs:      []string{"chan-1", "chan-2"},
			MemberIDs:       []string{"member-1"},
			CoOrgUserIDs:    []string{"user-1", "user-2"},
		},
		ComputedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := cache.Put(ctx, "user-1", entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := cache.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry present")
	}
	if diff := cmp.Diff(entry.Context, got.Context); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
	if !got.ComputedAt.Equal(entry.ComputedAt) {
		t.Fatalf("expected computedAt preserved, got %v", got.ComputedAt)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	cache := setupTestRedis(t)

	_, ok, err := cache.Get(context.Background(), "user-unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestRedisCacheExpires(t *testing.T) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), DefaultTTL)
	if err != nil {
		t.Fatalf("create redis cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Put(ctx, "user-1", Entry{ComputedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}

	s.FastForward(DefaultTTL + time.Second)

	_, ok, err := cache.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected entry evicted after TTL")
	}
}
