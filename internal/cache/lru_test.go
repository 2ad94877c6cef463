package cache

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(size int, ttl time.Duration) (*LRU[string], *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRU[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a present")
	}
	c.Set("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("a = %q, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "3")
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a expired")
	}
	if v, ok := c.Get("b"); !ok || v != "3" {
		t.Fatalf("b = %q, %v", v, ok)
	}
	clk.t = clk.t.Add(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("cleaned %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestLRUZeroTTLNeverExpires(t *testing.T) {
	c, clk := newTestLRU(10, 0)
	c.Set("a", "1")
	clk.t = clk.t.Add(24 * time.Hour)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a present")
	}
}

func TestLRUDeleteAndPurge(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a deleted")
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("len after purge = %d", c.Len())
	}
	c.Set("c", "3")
	if v, _ := c.Get("c"); v != "3" {
		t.Fatalf("cache unusable after purge")
	}
}

func TestJanitorSweep(t *testing.T) {
	c, clk := newTestLRU(10, time.Second)
	c.Set("a", "1")
	j := NewJanitor()
	j.Register(c)
	clk.t = clk.t.Add(2 * time.Second)
	if n := j.Sweep(); n != 1 {
		t.Fatalf("swept %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx, time.Millisecond)
	cancel()
	j.Wait()
}
