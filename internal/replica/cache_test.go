package replica

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCacheInsertionOrderEviction(t *testing.T) {
	c := NewPrefetchCache(3, func(ctx context.Context, id string) ([]byte, error) {
		return []byte(id), nil
	})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := c.Get(ctx, id); err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
	}

	// Re-reading "a" must NOT refresh its position: insertion order, not
	// access order.
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Fatalf("Get(a): %v", err)
	}

	if _, err := c.Get(ctx, "d"); err != nil {
		t.Fatalf("Get(d): %v", err)
	}

	if c.Has("a") {
		t.Fatalf("a should have been evicted first despite the recent hit")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !c.Has(id) {
			t.Fatalf("%s should be cached", id)
		}
	}
}

func TestCacheCapacity(t *testing.T) {
	c := NewPrefetchCache(10, func(ctx context.Context, id string) ([]byte, error) {
		return []byte(id), nil
	})
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		c.Get(ctx, fmt.Sprintf("%d", i))
	}
	if c.Len() != 10 {
		t.Fatalf("len = %d, want 10", c.Len())
	}
	if c.Has("14") || !c.Has("15") {
		t.Fatalf("wrong eviction window")
	}
}

func TestCacheDedupesConcurrentFetches(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	c := NewPrefetchCache(10, func(ctx context.Context, id string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(id), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "x"); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("fetch calls = %d, want 1", n)
	}
}

func TestAround(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	got := Around(ids, 1, 3)
	want := []string{"a", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if out := Around(ids, 0, 2); len(out) != 2 || out[0] != "b" {
		t.Fatalf("at start: %v", out)
	}
	if out := Around(ids, 4, 3); len(out) != 1 || out[0] != "d" {
		t.Fatalf("at end: %v", out)
	}
}
