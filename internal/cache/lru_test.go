package cache

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLRUExpiryAndPeek(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](4, time.Hour).WithClock(clk.now)

	c.Set("a", "alpha")
	if v, ok := c.Get("a"); !ok || v != "alpha" {
		t.Fatalf("expected live entry, got %q %v", v, ok)
	}

	clk.t = clk.t.Add(2 * time.Hour)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry should have expired")
	}
	v, fresh, ok := c.Peek("a")
	if !ok || fresh || v != "alpha" {
		t.Fatalf("Peek should return the stale entry, got %q fresh=%v ok=%v", v, fresh, ok)
	}

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 cleaned entry, got %d", n)
	}
	if _, _, ok := c.Peek("a"); ok {
		t.Fatalf("cleaned entry should be gone")
	}
}

func TestLRUSetWithExpiry(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](4, time.Hour).WithClock(clk.now)
	c.SetWithExpiry("k", 7, clk.t.Add(10*time.Minute))

	clk.t = clk.t.Add(5 * time.Minute)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry should still be live")
	}
	clk.t = clk.t.Add(6 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should have expired at its explicit deadline")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("recently used entry should survive")
	}
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("deleted entry should be gone")
	}
}

func TestManagerSweep(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewLRUCache[int](4, time.Minute).WithClock(clk.now)
	b := NewLRUCache[int](4, time.Hour).WithClock(clk.now)
	a.Set("x", 1)
	b.Set("y", 2)

	m := NewManager()
	m.Register("a", a)
	m.Register("b", b)
	clk.t = clk.t.Add(2 * time.Minute)

	if n := m.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 removed entry, got %d", n)
	}
	m.Stop()
}
