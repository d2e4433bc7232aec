package correlation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type summary struct {
	OrderCount int
	HasActive  bool
}

func TestCache_UnknownIsDistinctFromEmpty(t *testing.T) {
	c := New[summary](0, 0)

	if f := c.Get("u1"); f.Known {
		t.Fatalf("expected unknown for a fresh key, got %+v", f)
	}

	c.Put("u1", summary{})
	f := c.Get("u1")
	if !f.Known || f.Value.OrderCount != 0 || f.UpdatedAt.IsZero() {
		t.Fatalf("expected a known empty summary, got %+v", f)
	}

	c.Evict("u1")
	if f := c.Get("u1"); f.Known {
		t.Fatalf("expected unknown after evict, got %+v", f)
	}
}

func TestCache_LatestWins(t *testing.T) {
	c := New[summary](0, 0)
	c.Put("u1", summary{OrderCount: 1})
	c.Put("u1", summary{OrderCount: 2, HasActive: true})

	if f := c.Get("u1"); f.Value.OrderCount != 2 || !f.Value.HasActive {
		t.Fatalf("expected latest value, got %+v", f)
	}
}

func TestCache_ExpiresToUnknown(t *testing.T) {
	c := New[summary](0, 20*time.Millisecond)
	c.Put("u1", summary{OrderCount: 3})

	time.Sleep(60 * time.Millisecond)
	if f := c.Get("u1"); f.Known {
		t.Fatalf("expected stale entry to read as unknown, got %+v", f)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[summary](0, 0)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("u%d", i%10)
				c.Put(key, summary{OrderCount: w})
				_ = c.Get(key)
				if i%17 == 0 {
					c.Evict(key)
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 10 {
		t.Fatalf("expected at most 10 keys, got %d", c.Len())
	}
}
