package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestTTL(t *testing.T, ttl time.Duration, maxSize int) (*TTL[string], *time.Time) {
	t.Helper()
	c, err := NewTTL[string](ttl, maxSize)
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	return c, &now
}

func TestNewTTLRejectsNegativeBounds(t *testing.T) {
	if _, err := NewTTL[string](-1*time.Second, 10); err == nil {
		t.Fatal("expected error for negative ttl")
	}
	if _, err := NewTTL[string](time.Second, -1); err == nil {
		t.Fatal("expected error for negative max size")
	}
}

func TestCheckFirstSeenThenDuplicate(t *testing.T) {
	c, _ := newTestTTL(t, 10*time.Minute, 100)

	if c.Check("telegram:42:m1") {
		t.Fatal("first check should report not seen")
	}
	if !c.Check("telegram:42:m1") {
		t.Fatal("second check should report duplicate")
	}
}

func TestCheckEmptyKeyNeverSeenNeverStored(t *testing.T) {
	c, _ := newTestTTL(t, 10*time.Minute, 100)

	if c.Check("") {
		t.Fatal("empty key should never be seen")
	}
	if c.Check("") {
		t.Fatal("empty key should not be stored by a previous check")
	}
	if c.Len() != 0 {
		t.Fatalf("empty key should not mutate state, size = %d", c.Len())
	}
}

func TestCheckTTLExpiry(t *testing.T) {
	c, now := newTestTTL(t, 10*time.Minute, 100)

	c.Check("k")
	*now = now.Add(10*time.Minute + time.Second)
	if c.Check("k") {
		t.Fatal("expired key should be treated as new")
	}
	if !c.Check("k") {
		t.Fatal("re-inserted key should be a duplicate again")
	}
}

func TestExpiredKeyReinsertsAtEndOfFIFO(t *testing.T) {
	c, now := newTestTTL(t, 10*time.Minute, 3)

	c.Check("a")
	*now = now.Add(6 * time.Minute)
	c.Check("b")
	c.Check("c")

	// "a" expires; re-checking it re-inserts it at the new timestamp, behind
	// "b" and "c" in the eviction order.
	*now = now.Add(5 * time.Minute)
	if c.Check("a") {
		t.Fatal("expired key should be a fresh insert")
	}

	c.Check("d") // size now 4 > 3: oldest-inserted ("b") goes, not "a"
	if c.Check("b") {
		t.Fatal("expected b to have been evicted as the oldest insert")
	}
	if !c.Check("a") {
		t.Fatal("re-inserted a should have survived eviction")
	}
}

func TestFIFOEvictionOrder(t *testing.T) {
	const n = 5
	c, _ := newTestTTL(t, 0, n)

	for i := 0; i <= n; i++ {
		c.Check(fmt.Sprintf("k%d", i))
		if c.Len() > n {
			t.Fatalf("cache size %d exceeds bound %d", c.Len(), n)
		}
	}
	// Exactly the oldest key was evicted.
	if c.Check("k0") {
		t.Fatal("expected k0 to be evicted")
	}
	for i := 1; i <= n; i++ {
		if _, ok := c.items[fmt.Sprintf("k%d", i)]; !ok {
			t.Fatalf("expected k%d to survive", i)
		}
	}
}

func TestCheckHitDoesNotRefreshTimestamp(t *testing.T) {
	c, now := newTestTTL(t, 10*time.Minute, 2)

	c.Check("a")
	*now = now.Add(time.Minute)
	c.Check("b")

	// Re-checking "a" is a hit but must not move it to the back of the
	// eviction order.
	c.Check("a")
	c.Check("c") // evicts the oldest insert, which is still "a"

	if c.Check("a") {
		t.Fatal("expected a to be evicted despite the recent read")
	}
}

func TestGetSetValueVariant(t *testing.T) {
	c, now := newTestTTL(t, 10*time.Minute, 100)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if c.Len() != 0 {
		t.Fatal("Get miss must not insert")
	}

	c.Set("k", "cached reply")
	got, ok := c.Get("k")
	if !ok || got != "cached reply" {
		t.Fatalf("expected hit with stored value, got %q ok=%v", got, ok)
	}

	*now = now.Add(11 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestZeroTTLMeansNoExpiry(t *testing.T) {
	c, now := newTestTTL(t, 0, 10)

	c.Set("k", "v")
	*now = now.Add(1000 * time.Hour)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("ttl 0 should disable expiry")
	}
}

func TestTTLConcurrentAccess(t *testing.T) {
	c, err := NewTTL[string](time.Minute, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%100)
				c.Check(key)
				c.Set(key, "v")
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Fatalf("size bound violated under concurrency: %d", c.Len())
	}
}
