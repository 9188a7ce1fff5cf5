package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Minute).WithClock(clock.Now)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be removed on read")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](2, time.Hour)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used key should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("recently read key should survive")
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	c.Set("u1:2025-01", 1)
	c.Set("u1:2025-02", 2)
	c.Set("u2:2025-01", 3)

	if n := c.DeletePrefix("u1:"); n != 2 {
		t.Fatalf("removed %d, want 2", n)
	}
	if _, ok := c.Get("u2:2025-01"); !ok {
		t.Fatalf("other users must keep their entries")
	}
}

func TestManagerSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := NewLRUCache[int](10, time.Second).WithClock(clock.Now)
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager(nil)
	m.Register(c)
	clock.Advance(time.Minute)
	if n := m.Sweep(); n != 2 {
		t.Fatalf("swept %d, want 2", n)
	}

	m.StartCleanup(context.Background(), time.Millisecond)
	m.Stop()
	m.Stop()
}
