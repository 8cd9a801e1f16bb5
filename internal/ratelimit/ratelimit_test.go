package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lncurl/lncurl/internal/clock"
)

func exerciseQuota(t *testing.T, limiter Limiter, fake *clock.Fake) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed || res.Remaining != 2-i {
			t.Fatalf("attempt %d: got %+v", i, res)
		}
		fake.Advance(time.Minute)
	}

	res, err := limiter.Check(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Allowed || res.Remaining != 0 {
		t.Fatalf("fourth attempt should be rejected, got %+v", res)
	}

	other, _ := limiter.Check(ctx, "10.0.0.2")
	if !other.Allowed {
		t.Fatalf("other origins have their own quota")
	}

	// The oldest attempt leaves the window; exactly one slot frees up.
	fake.Advance(57 * time.Minute)
	res, _ = limiter.Check(ctx, "10.0.0.1")
	if !res.Allowed || res.Remaining != 0 {
		t.Fatalf("expected one freed slot, got %+v", res)
	}
	res, _ = limiter.Check(ctx, "10.0.0.1")
	if res.Allowed {
		t.Fatalf("expected rejection once the freed slot is used")
	}
}

func TestWindowQuota(t *testing.T) {
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	exerciseQuota(t, NewWindow(fake, 3, time.Hour), fake)
}

func TestRedisQuota(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	exerciseQuota(t, NewRedis(client, fake, 3, time.Hour), fake)
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	if _, err := NewRedis(client, nil, 3, time.Hour).Check(context.Background(), "k"); err == nil {
		t.Fatalf("expected an error with redis down")
	}
}

func TestWindowSweepEvictsIdleKeys(t *testing.T) {
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	w := NewWindow(fake, 10, time.Hour)
	ctx := context.Background()

	_, _ = w.Check(ctx, "old")
	fake.Advance(50 * time.Minute)
	_, _ = w.Check(ctx, "fresh")
	fake.Advance(20 * time.Minute)

	if evicted := w.Sweep(); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if w.Keys() != 1 {
		t.Fatalf("expected 1 tracked key, got %d", w.Keys())
	}
}

func TestWindowRejectedAttemptsDoNotCount(t *testing.T) {
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	w := NewWindow(fake, 1, time.Hour)
	ctx := context.Background()

	_, _ = w.Check(ctx, "k")
	for i := 0; i < 5; i++ {
		fake.Advance(10 * time.Minute)
		_, _ = w.Check(ctx, "k")
	}
	fake.Advance(11 * time.Minute)
	if res, _ := w.Check(ctx, "k"); !res.Allowed {
		t.Fatalf("rejected attempts must not extend the window")
	}
}

func TestRedisConcurrentAttemptsNeverExceedQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 20})
	defer client.Close()

	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRedis(client, fake, 10, time.Hour)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(context.Background(), "203.0.113.7")
			if err != nil {
				t.Errorf("check: %v", err)
				return
			}
			if res.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Fatalf("expected exactly 10 admitted attempts, got %d", got)
	}
	if n, _ := client.ZCard(context.Background(), redisKeyPrefix+"203.0.113.7").Result(); n != 10 {
		t.Fatalf("rejected attempts must not be recorded, window holds %d", n)
	}
}
