package sortx

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/pario/comm"
)

func TestParallelSortProducesGloballySortedSequence(t *testing.T) {
	n := 4
	g := comm.NewGroup(n)
	ctx := context.Background()

	shards := [][]int64{
		{9, 3, 7},
		{1, 8, 2},
		{6, 4},
		{5, 10, 0},
	}
	var total []int64
	for _, s := range shards {
		total = append(total, s...)
	}

	results := make([][]int64, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			out, err := ParallelSort(ctx, g, r, shards[r], rand.New(rand.NewSource(int64(r)+1)))
			results[r] = out
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("parallel sort failed: %v", err)
	}

	var merged []int64
	for _, r := range results {
		merged = append(merged, r...)
	}
	if len(merged) != len(total) {
		t.Fatalf("merged length=%d want %d", len(merged), len(total))
	}
	sort.Slice(total, func(i, j int) bool { return total[i] < total[j] })
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	for i := range total {
		if total[i] != merged[i] {
			t.Fatalf("merged[%d]=%d want %d", i, merged[i], total[i])
		}
	}
}

func TestIsUniqueIgnoresHoleSentinel(t *testing.T) {
	if !IsUnique([]int64{0, 0, 1, 2, 3}) {
		t.Fatal("zero values should not count as duplicates")
	}
	if IsUnique([]int64{1, 2, 2, 3}) {
		t.Fatal("expected duplicate 2 to be detected")
	}
}

func TestRunUniqueCheckDetectsGlobalDuplicate(t *testing.T) {
	n := 3
	g := comm.NewGroup(n)
	ctx := context.Background()

	// Rank 0 and rank 2 both contribute the value 5 — a global duplicate
	// even though neither rank's local shard has a duplicate by itself.
	shards := [][]int64{
		{1, 5},
		{2, 3},
		{4, 5},
	}

	results := make([]bool, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			dup, err := RunUniqueCheck(ctx, g, r, shards[r], rand.New(rand.NewSource(int64(r)+1)))
			results[r] = dup
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("run unique check failed: %v", err)
	}
	for r, dup := range results {
		if !dup {
			t.Fatalf("rank %d: expected global duplicate detection, got false", r)
		}
	}
}

func TestRunUniqueCheckAcceptsPermutation(t *testing.T) {
	n := 3
	g := comm.NewGroup(n)
	ctx := context.Background()

	shards := [][]int64{
		{1, 4},
		{2, 5},
		{3, 6},
	}

	results := make([]bool, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			dup, err := RunUniqueCheck(ctx, g, r, shards[r], rand.New(rand.NewSource(int64(r)+1)))
			results[r] = dup
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("run unique check failed: %v", err)
	}
	for r, dup := range results {
		if dup {
			t.Fatalf("rank %d: expected no duplicates, got true", r)
		}
	}
}
