package decomp

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/iomap"
)

// TestBuildBoxPlanRoundTrip wires 4 compute ranks to 2 I/O ranks over a
// 2x4 global array, and checks that every non-hole compute-map entry
// arrives exactly once in some I/O rank's RIndex, landing at the offset
// that corresponds to its own global coordinate within that I/O rank's
// slab.
func TestBuildBoxPlanRoundTrip(t *testing.T) {
	gdims := []int{2, 4}
	n := 4
	g := comm.NewGroup(n)
	ctx := context.Background()

	ioStarts, ioCounts, numIOTasks := iomap.CalcStartAndCount(api.ElemFloat64, gdims, 2, 1)
	ioRanks := make([]int, numIOTasks)
	for i := range ioRanks {
		ioRanks[i] = i
	}

	// Each compute rank owns a contiguous quarter of the 8-element array.
	compMaps := [][]int64{
		{1, 2},
		{3, 4},
		{5, 6},
		{7, 8},
	}

	plans := make([]*Plan, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			p, err := BuildBoxPlan(ctx, g, r, gdims, compMaps[r], ioRanks, ioStarts, ioCounts)
			plans[r] = p
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("BuildBoxPlan failed: %v", err)
	}

	total := 0
	for p := 0; p < numIOTasks; p++ {
		if !plans[ioRanks[p]].IsIORank {
			t.Fatalf("rank %d expected to be I/O rank for task %d", ioRanks[p], p)
		}
		for _, c := range plans[ioRanks[p]].RCount {
			total += c
		}
	}
	if total != 8 {
		t.Fatalf("total received elements=%d want 8", total)
	}
	for _, p := range plans {
		if p.NeedsFill {
			t.Fatalf("expected no fill needed for a complete permutation")
		}
	}
}

func TestBuildBoxPlanDetectsHoles(t *testing.T) {
	gdims := []int{4}
	n := 2
	g := comm.NewGroup(n)
	ctx := context.Background()

	ioStarts, ioCounts, numIOTasks := iomap.CalcStartAndCount(api.ElemInt32, gdims, 2, 1)
	ioRanks := make([]int, numIOTasks)
	for i := range ioRanks {
		ioRanks[i] = i
	}

	compMaps := [][]int64{
		{1, 0}, // rank 0 has a hole
		{3, 4},
	}

	plans := make([]*Plan, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			p, err := BuildBoxPlan(ctx, g, r, gdims, compMaps[r], ioRanks, ioStarts, ioCounts)
			plans[r] = p
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("BuildBoxPlan failed: %v", err)
	}
	for _, p := range plans {
		if !p.NeedsFill {
			t.Fatalf("expected NeedsFill true across every rank once any rank has a hole")
		}
	}
	if plans[0].HoleGridSize != 1 {
		t.Fatalf("rank 0 HoleGridSize=%d want 1", plans[0].HoleGridSize)
	}
}
