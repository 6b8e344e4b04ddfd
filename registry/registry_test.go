package registry

import (
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestTableAddGetDelete(t *testing.T) {
	tb := NewTable[string](FileHandleBase, FileHandleStep)
	h1 := tb.Add("first.nc")
	h2 := tb.Add("second.nc")

	if h1 != FileHandleBase || h2 != FileHandleBase+1 {
		t.Fatalf("unexpected handles: h1=%d h2=%d", h1, h2)
	}
	if v, ok := tb.Get(h1); !ok || v != "first.nc" {
		t.Fatalf("Get(h1)=%q,%v want first.nc,true", v, ok)
	}
	if v, ok := tb.Get(h2); !ok || v != "second.nc" {
		t.Fatalf("Get(h2)=%q,%v want second.nc,true", v, ok)
	}
	if !tb.Delete(h1) {
		t.Fatal("Delete(h1) should succeed")
	}
	if _, ok := tb.Get(h1); ok {
		t.Fatal("h1 should be gone after Delete")
	}
	if tb.Len() != 1 {
		t.Fatalf("Len()=%d want 1", tb.Len())
	}
}

func TestTableCurrentCacheSurvivesLookup(t *testing.T) {
	tb := NewTable[int](0, 1)
	h := tb.Add(42)
	// Add already sets the "current" fast path to h; both Gets for the
	// same handle must succeed via that path.
	if v, ok := tb.Get(h); !ok || v != 42 {
		t.Fatalf("first Get failed: %v,%v", v, ok)
	}
	if v, ok := tb.Get(h); !ok || v != 42 {
		t.Fatalf("second Get (cached) failed: %v,%v", v, ok)
	}
}

func TestIOSystemHandlesUseShiftedUnit(t *testing.T) {
	tb := NewIOSystemTable[int]()
	h1 := tb.Add(1)
	h2 := tb.Add(2)
	if h1 != IOSystemHandleUnit {
		t.Fatalf("h1=%d want %d", h1, IOSystemHandleUnit)
	}
	if h2 != 2*IOSystemHandleUnit {
		t.Fatalf("h2=%d want %d", h2, 2*IOSystemHandleUnit)
	}
}

func TestIODescHandlesStartAt512(t *testing.T) {
	tb := NewIODescTable[string]()
	h := tb.Add("plan-a")
	if h != IODescHandleBase {
		t.Fatalf("first iodesc handle=%d want %d", h, IODescHandleBase)
	}
}

func TestDedupCoalescesConcurrentCreates(t *testing.T) {
	d := NewDedup[int]()
	var calls int
	var mu sync.Mutex

	n := 8
	results := make([]int, n)
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			v, err := d.GetOrCreate("shared-key", func() (int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return 99, nil
			})
			results[i] = v
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	for i, v := range results {
		if v != 99 {
			t.Fatalf("result[%d]=%d want 99", i, v)
		}
	}
	if calls != 1 {
		t.Fatalf("create callback invoked %d times, want exactly 1", calls)
	}
}

func TestDedupDistinctKeysCreateIndependently(t *testing.T) {
	d := NewDedup[string]()
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("key-%d", i)
		v, err := d.GetOrCreate(key, func() (string, error) {
			return key + "-value", nil
		})
		if err != nil {
			t.Fatalf("GetOrCreate(%s): %v", key, err)
		}
		if v != key+"-value" {
			t.Fatalf("GetOrCreate(%s)=%q", key, v)
		}
	}
}
