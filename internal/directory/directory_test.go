package directory

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"clinicsched/backend/internal/store"
)

type fakeCache struct {
	getFn func(ctx context.Context, locationID string) (string, bool, error)
	setFn func(ctx context.Context, locationID, providerID string) error
}

func (f *fakeCache) Get(ctx context.Context, locationID string) (string, bool, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, locationID)
}

func (f *fakeCache) Set(ctx context.Context, locationID, providerID string) error {
	if f.setFn == nil {
		panic("Set not configured")
	}
	return f.setFn(ctx, locationID, providerID)
}

type countingDirectory struct {
	Directory
	calls int
}

func (c *countingDirectory) FindProviderForLocation(ctx context.Context, locationID string) (string, error) {
	c.calls++
	return c.Directory.FindProviderForLocation(ctx, locationID)
}

func TestStatic(t *testing.T) {
	d := NewStatic(map[string]string{"loc-1": "prov-1"})
	ctx := context.Background()

	got, err := d.FindProviderForLocation(ctx, "loc-1")
	if err != nil || got != "prov-1" {
		t.Fatalf("FindProviderForLocation = %q, %v", got, err)
	}
	if _, err := d.FindProviderForLocation(ctx, "loc-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
	d.Assign("loc-2", "prov-2")
	if got, _ := d.FindProviderForLocation(ctx, "loc-2"); got != "prov-2" {
		t.Fatalf("after Assign = %q, want prov-2", got)
	}
}

func TestParseMappings(t *testing.T) {
	got := ParseMappings(" loc-1=prov-1, loc-2 = prov-2,broken,=x,y=")
	if len(got) != 2 || got["loc-1"] != "prov-1" || got["loc-2"] != "prov-2" {
		t.Fatalf("ParseMappings = %v", got)
	}
}

func TestCached_ServesHitsAndFillsOnMiss(t *testing.T) {
	inner := &countingDirectory{Directory: NewStatic(map[string]string{"loc-1": "prov-1"})}
	d := NewCached(inner, NewLRUCache(8, time.Minute), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := d.FindProviderForLocation(ctx, "loc-1")
		if err != nil || got != "prov-1" {
			t.Fatalf("lookup %d = %q, %v", i, got, err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls)
	}
}

func TestCached_DoesNotCacheMisses(t *testing.T) {
	static := NewStatic(nil)
	inner := &countingDirectory{Directory: static}
	d := NewCached(inner, NewLRUCache(8, time.Minute), nil)
	ctx := context.Background()

	if _, err := d.FindProviderForLocation(ctx, "loc-9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
	static.Assign("loc-9", "prov-9")
	got, err := d.FindProviderForLocation(ctx, "loc-9")
	if err != nil || got != "prov-9" {
		t.Fatalf("after assignment = %q, %v", got, err)
	}
}

func TestCached_CacheFailureFallsThrough(t *testing.T) {
	inner := NewStatic(map[string]string{"loc-1": "prov-1"})
	setCalled := false
	cache := &fakeCache{
		getFn: func(ctx context.Context, locationID string) (string, bool, error) {
			return "", false, errors.New("redis down")
		},
		setFn: func(ctx context.Context, locationID, providerID string) error {
			setCalled = true
			return errors.New("redis down")
		},
	}

	got, err := NewCached(inner, cache, nil).FindProviderForLocation(context.Background(), "loc-1")
	if err != nil || got != "prov-1" {
		t.Fatalf("FindProviderForLocation = %q, %v", got, err)
	}
	if !setCalled {
		t.Fatalf("expected cache fill attempt")
	}
}

func TestLRUCache_Expires(t *testing.T) {
	c := NewLRUCache(2, 20*time.Millisecond)
	ctx := context.Background()
	_ = c.Set(ctx, "loc-1", "prov-1")
	if v, ok, _ := c.Get(ctx, "loc-1"); !ok || v != "prov-1" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "loc-1"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestRedisCacheIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("CLINICSCHED_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("CLINICSCHED_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	if err := ReadyCheck(rdb)(ctx); err != nil {
		t.Fatalf("ping error: %v", err)
	}

	c := NewRedisCache(rdb, time.Minute, "clinicsched-test:"+t.Name())
	if _, ok, err := c.Get(ctx, "loc-1"); ok || err != nil {
		t.Fatalf("cold Get = %v, %v", ok, err)
	}
	if err := c.Set(ctx, "loc-1", "prov-1"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if v, ok, err := c.Get(ctx, "loc-1"); !ok || err != nil || v != "prov-1" {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}
	_ = rdb.Del(ctx, c.key("loc-1")).Err()
}
