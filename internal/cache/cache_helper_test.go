package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testPayload struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheHelper(client, "test:"), mr
}

func TestCacheHelper_SetGet(t *testing.T) {
	ctx := context.Background()
	helper, _ := newTestCache(t)

	in := testPayload{ID: 7, Name: "fractions"}
	if err := helper.Set(ctx, "quiz:7", in, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out testPayload
	if err := helper.Get(ctx, "quiz:7", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out != in {
		t.Errorf("Round trip mismatch: %+v != %+v", out, in)
	}
}

func TestCacheHelper_GetMissing(t *testing.T) {
	ctx := context.Background()
	helper, _ := newTestCache(t)

	var out testPayload
	err := helper.Get(ctx, "nope", &out)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	ctx := context.Background()
	helper, _ := newTestCache(t)

	_ = helper.Set(ctx, "a", testPayload{ID: 1}, time.Minute)
	_ = helper.Set(ctx, "b", testPayload{ID: 2}, time.Minute)

	if err := helper.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var out testPayload
	if err := helper.Get(ctx, "a", &out); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Expected key gone, got %v", err)
	}
}

func TestCacheHelper_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	helper, mr := newTestCache(t)

	_ = helper.Set(ctx, "short", testPayload{ID: 1}, 10*time.Second)
	mr.FastForward(11 * time.Second)

	var out testPayload
	if err := helper.Get(ctx, "short", &out); !errors.Is(err, ErrCacheNotFound) {
		t.Errorf("Expected expiry, got %v", err)
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	ctx := context.Background()
	helper, _ := newTestCache(t)

	calls := 0
	load := func() (interface{}, error) {
		calls++
		return testPayload{ID: 3, Name: "loaded"}, nil
	}

	var first testPayload
	if err := helper.CacheOrExecute(ctx, "k", &first, time.Minute, load); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 || first.Name != "loaded" {
		t.Errorf("Expected one load, got calls=%d result=%+v", calls, first)
	}

	var second testPayload
	if err := helper.CacheOrExecute(ctx, "k", &second, time.Minute, load); err != nil {
		t.Fatalf("CacheOrExecute (hit) failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Cache hit still executed fn: calls=%d", calls)
	}
	if second != first {
		t.Errorf("Hit returned different value: %+v != %+v", second, first)
	}
}

func TestCacheHelper_CacheOrExecute_LoadError(t *testing.T) {
	ctx := context.Background()
	helper, _ := newTestCache(t)

	wantErr := errors.New("db down")
	var out testPayload
	err := helper.CacheOrExecute(ctx, "k", &out, time.Minute, func() (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected load error, got %v", err)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	helper := NewCacheHelper(nil, "test:")

	if err := helper.Set(ctx, "k", testPayload{}, time.Minute); err != nil {
		t.Errorf("Set with nil client should be a no-op, got %v", err)
	}
	var out testPayload
	if err := helper.Get(ctx, "k", &out); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("Expected ErrCacheNotAvailable, got %v", err)
	}

	calls := 0
	err := helper.CacheOrExecute(ctx, "k", &out, time.Minute, func() (interface{}, error) {
		calls++
		return testPayload{ID: 9}, nil
	})
	if err != nil || calls != 1 || out.ID != 9 {
		t.Errorf("Expected fallthrough to loader, got err=%v calls=%d out=%+v", err, calls, out)
	}
}
