// Package sortx implements the parallel sample-sort used to validate
// that a decomposition's compute map is a permutation of the global
// index set (spec §4.7 / C7). Ported 1:1 from parallel_sort.c: draw
// size-1 random samples per rank, all-gather and sort them to pick
// size-1 pivots, partition local data against the pivots into `size`
// bins, redistribute bin i to rank i, sort the redistributed result
// locally.
package sortx

import (
	"context"
	"math/rand"
	"sort"

	"github.com/momentics/pario/comm"
)

// shard is what one rank publishes for the redistribution round: its
// locally partitioned data plus the bin boundaries within it, so every
// other rank can slice out exactly the bin addressed to itself — the
// in-process stand-in for MPI_Alltoallv's (sendcounts, sdispls) pair.
type shard struct {
	data       []int64
	blockSizes []int
}

// partition moves every element of data that is < pivot to the front,
// preserving their encounter order (the swaps may reorder the >= side),
// and returns the index of
// the first element >= pivot. Ported from parallel_sort.c's partition.
func partition(data []int64, pivot int64) int {
	i := 0
	for i < len(data) && data[i] < pivot {
		i++
	}
	if i == len(data) {
		return i
	}
	for j := i + 1; j < len(data); j++ {
		if data[j] < pivot {
			data[i], data[j] = data[j], data[i]
			i++
		}
	}
	return i
}

// ParallelSort sorts v, which is distributed one shard per rank over g,
// into a new distribution: the returned slice holds this rank's share
// of the fully sorted global sequence. The size of the result may
// differ from len(v); in the worst case one rank ends up holding the
// entire sorted array. rng supplies the pivot-sampling randomness; pass
// nil to get a default per-rank source seeded from rank (deterministic,
// for reproducible tests — the source library reseeds from wall-clock
// time, which pario cannot replay in tests).
func ParallelSort(ctx context.Context, g *comm.Group, rank int, v []int64, rng *rand.Rand) ([]int64, error) {
	size := g.Size()
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(rank) + 1))
	}

	if size == 1 {
		out := append([]int64(nil), v...)
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out, nil
	}

	localPivots := make([]int64, size-1)
	for i := range localPivots {
		if len(v) == 0 {
			localPivots[i] = 0
			continue
		}
		localPivots[i] = v[rng.Intn(len(v))]
	}

	pivotsColl := comm.NewCollective[[]int64](g)
	pivotsColl.Set(rank, localPivots)
	if err := pivotsColl.Wait(ctx); err != nil {
		return nil, err
	}
	allPivots := make([]int64, 0, size*(size-1))
	for p := 0; p < size; p++ {
		allPivots = append(allPivots, pivotsColl.Get(p)...)
	}
	sort.Slice(allPivots, func(i, j int) bool { return allPivots[i] < allPivots[j] })

	chosen := make([]int64, size-1)
	for i := 1; i < size; i++ {
		chosen[i-1] = allPivots[i*(size-1)]
	}

	local := append([]int64(nil), v...)
	pivotPos := make([]int, size+1)
	pivotPos[size] = len(local)
	for i := 0; i < size-1; i++ {
		b := partition(local[pivotPos[i]:], chosen[i])
		pivotPos[i+1] = pivotPos[i] + b
	}

	blockSizes := make([]int, size)
	for i := 0; i < size; i++ {
		blockSizes[i] = pivotPos[i+1] - pivotPos[i]
	}

	shardColl := comm.NewCollective[shard](g)
	shardColl.Set(rank, shard{data: local, blockSizes: blockSizes})
	if err := shardColl.Wait(ctx); err != nil {
		return nil, err
	}

	var recv []int64
	for p := 0; p < size; p++ {
		s := shardColl.Get(p)
		offset := 0
		for i := 0; i < rank; i++ {
			offset += s.blockSizes[i]
		}
		length := s.blockSizes[rank]
		recv = append(recv, s.data[offset:offset+length]...)
	}
	sort.Slice(recv, func(i, j int) bool { return recv[i] < recv[j] })
	return recv, nil
}

// IsUnique reports whether sorted (ascending, as returned by
// ParallelSort) has no repeated non-zero values. Zero is the hole
// sentinel (api.HoleSentinel) and is explicitly exempt from the
// uniqueness check, matching is_unique's `if (v.data[i] == 0) continue`.
func IsUnique(sorted []int64) bool {
	if len(sorted) <= 1 {
		return true
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == 0 {
			continue
		}
		if sorted[i] == sorted[i-1] {
			return false
		}
	}
	return true
}

// RunUniqueCheck parallel-sorts v and reports, via an all-reduce max
// over every rank's local uniqueness verdict, whether the global
// sequence contains duplicates anywhere — the operation decomp uses to
// validate that a compute map is a true permutation of the global index
// set before trusting a BOX or SUBSET plan built from it.
func RunUniqueCheck(ctx context.Context, g *comm.Group, rank int, v []int64, rng *rand.Rand) (bool, error) {
	sorted, err := ParallelSort(ctx, g, rank, v, rng)
	if err != nil {
		return false, err
	}
	iHaveDups := 0
	if !IsUnique(sorted) {
		iHaveDups = 1
	}
	globalDups, err := comm.AllreduceMax(ctx, g, rank, iHaveDups)
	if err != nil {
		return false, err
	}
	return globalDups > 0, nil
}
