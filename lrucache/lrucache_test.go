package lrucache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New[string, int](10, 0)
	var staging Staging[string, int]
	c.Put("a", 1, &staging)
	if got, ok := c.Get("a"); !ok || got != 1 {
		t.Fatalf("Get(a) = %v, %v, want 1, true", got, ok)
	}
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2, 0)
	var staging Staging[string, int]
	c.Put("a", 1, &staging)
	c.Put("b", 2, &staging)
	c.Get("a") // promote a, b is now LRU
	c.Put("c", 3, &staging)

	evicted := staging.Drain()
	if len(evicted) != 1 || evicted[0].Key != "b" {
		t.Fatalf("expected b to be evicted, got %+v", evicted)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be gone")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive")
	}
}

func TestEvictAgedRemovesOnlyOldEntries(t *testing.T) {
	c := New[string, int](10, 10*time.Millisecond)
	var staging Staging[string, int]
	c.Put("old", 1, &staging)
	time.Sleep(20 * time.Millisecond)
	c.Put("new", 2, &staging)

	c.EvictAged(&staging)
	evicted := staging.Drain()
	if len(evicted) != 1 || evicted[0].Key != "old" {
		t.Fatalf("expected only 'old' evicted, got %+v", evicted)
	}
	if _, ok := c.Get("new"); !ok {
		t.Fatal("expected 'new' to survive")
	}
}

func TestDrainAllEmptiesCache(t *testing.T) {
	c := New[string, int](10, 0)
	var staging Staging[string, int]
	for i := 0; i < 5; i++ {
		c.Put(fmt.Sprintf("k%d", i), i, &staging)
	}
	staging.Drain()

	c.DrainAll(&staging)
	if len(staging.Drain()) != 5 {
		t.Fatalf("expected 5 entries drained")
	}
	if c.Len() != 0 {
		t.Fatalf("expected cache empty after DrainAll, got len %d", c.Len())
	}
}

func TestDisabledCacheRejectsWrites(t *testing.T) {
	c := New[string, int](0, 0)
	if !c.Disabled() {
		t.Fatal("expected zero-capacity cache to report disabled")
	}
	var staging Staging[string, int]
	c.Put("a", 1, &staging)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected disabled cache to reject writes")
	}
}

// TestConcurrentPutGet hammers the cache from a pool of goroutines
// joined on a WaitGroup, checked for races under `go test -race`.
func TestConcurrentPutGet(t *testing.T) {
	c := New[int, int](50, 0)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var staging Staging[int, int]
			c.Put(i%50, i, &staging)
			c.Get(i % 50)
		}(i)
	}
	wg.Wait()
}
