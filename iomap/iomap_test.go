package iomap

import (
	"testing"

	"github.com/momentics/pario/api"
)

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

func TestCalcStartAndCountTilesExactly(t *testing.T) {
	gdims := []int{16, 4}
	starts, counts, n := CalcStartAndCount(api.ElemFloat64, gdims, 4, 1)
	if n > 4 {
		t.Fatalf("numAIOTasks=%d exceeds requested 4", n)
	}
	total := 0
	for i := 0; i < n; i++ {
		total += product(counts[i])
		if product(counts[i]) == 0 {
			t.Fatalf("task %d got an empty slab: %v", i, counts[i])
		}
	}
	if total != product(gdims) {
		t.Fatalf("total assigned=%d want %d", total, product(gdims))
	}
	_ = starts
}

func TestCalcStartAndCountDeterministic(t *testing.T) {
	gdims := []int{17, 3}
	s1, c1, n1 := CalcStartAndCount(api.ElemInt32, gdims, 5, 1)
	s2, c2, n2 := CalcStartAndCount(api.ElemInt32, gdims, 5, 1)
	if n1 != n2 {
		t.Fatalf("non-deterministic numAIOTasks: %d vs %d", n1, n2)
	}
	for i := range c1 {
		for d := range c1[i] {
			if c1[i][d] != c2[i][d] || s1[i][d] != s2[i][d] {
				t.Fatalf("non-deterministic plan at task %d dim %d", i, d)
			}
		}
	}
}

func TestCalcStartAndCountShrinksForMinBlockSize(t *testing.T) {
	gdims := []int{8}
	_, counts, n := CalcStartAndCount(api.ElemFloat64, gdims, 8, 4)
	if n > 2 {
		t.Fatalf("expected numAIOTasks <= 2 when min block size is 4 over 8 elements, got %d", n)
	}
	total := 0
	for _, c := range counts {
		total += product(c)
	}
	if total != 8 {
		t.Fatalf("total=%d want 8", total)
	}
}

func TestCalcStartAndCountSingleTaskFallback(t *testing.T) {
	gdims := []int{3, 3}
	_, counts, n := CalcStartAndCount(api.ElemInt8, gdims, 100, 1000)
	if n != 1 {
		t.Fatalf("expected fallback to 1 task, got %d", n)
	}
	if product(counts[0]) != 9 {
		t.Fatalf("expected whole array in task 0, got %v", counts[0])
	}
}
