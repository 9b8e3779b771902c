package proxy

import "testing"

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(1)
	c.Add("first")
	if !c.Contains("first") {
		t.Fatal("expected first to be cached")
	}
	c.Add("second")
	if c.Contains("first") {
		t.Fatal("capacity-1 cache must evict the previous entry")
	}
	if !c.Contains("second") {
		t.Fatal("expected second to be cached")
	}
}

func TestCacheCapacity(t *testing.T) {
	c := NewCache(3)
	for _, id := range []string{"a", "b", "c"} {
		c.Add(id)
	}
	c.Add("d")
	if c.Contains("a") {
		t.Fatal("expected oldest entry to be evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !c.Contains(id) {
			t.Fatalf("expected %s to be cached", id)
		}
	}
	if got := len(c.Entries()); got != 3 {
		t.Fatalf("expected 3 entries, got %d", got)
	}
}

func TestCacheZeroCapacityClamped(t *testing.T) {
	c := NewCache(0)
	c.Add("only")
	if !c.Contains("only") {
		t.Fatal("zero capacity must clamp to one slot")
	}
}
