// Package iomap assigns a contiguous slab of the global array to each
// I/O task (spec §4.3, C3). No C source for this component survived
// the original_source filter; the algorithm below follows the spec's
// prose: split the slowest-varying dimension with enough length to
// cover the requested task count in blocks of at least the configured
// minimum size, and shrink the task count until that holds.
package iomap

import "github.com/momentics/pario/api"

// MinIOBlockSize is the build-time minimum block size (in elements)
// below which calc_start_and_count refuses to hand an I/O task a slab,
// preferring to use fewer I/O tasks instead. Spec §4.3 calls this a
// "build-time constant"; pario exposes it as a package variable so
// callers can tune it without forking the planner.
var MinIOBlockSize = 1

// CalcStartAndCount assigns a contiguous slab of the global array
// (described by gdims, slowest-varying dimension first) to each of up
// to numIOTasks I/O ranks. It returns one start/count pair per assigned
// rank (len(starts) == len(counts) == numAIOTasks) and the number of
// ranks actually used, which may be less than numIOTasks. The slabs
// tile the global array exactly once; every returned rank gets a
// non-empty slab; the result is a pure function of its inputs, so every
// rank computes the identical plan without communicating.
func CalcStartAndCount(pioType api.ElementType, gdims []int, numIOTasks, minIOBlockSize int) (starts, counts [][]int, numAIOTasks int) {
	if minIOBlockSize <= 0 {
		minIOBlockSize = MinIOBlockSize
	}
	if numIOTasks < 1 {
		numIOTasks = 1
	}

	// Convergence loop: shrink the requested task count until a split
	// exists whose per-task block meets the minimum size. n == 1 always
	// succeeds (the whole array as a single block), so this terminates.
	for n := numIOTasks; n >= 1; n-- {
		if st, ct, ok := trySplit(gdims, n, minIOBlockSize); ok {
			return st, ct, n
		}
	}
	// Unreachable: n==1 always returns ok==true.
	whole := make([]int, len(gdims))
	zero := make([]int, len(gdims))
	copy(whole, gdims)
	return [][]int{zero}, [][]int{whole}, 1
}

// trySplit attempts to divide gdims across n I/O tasks along the first
// (slowest-varying) dimension whose length is at least n, leaving every
// other dimension at full extent. It reports ok == false when no
// dimension is long enough, or when doing so would leave some task's
// block smaller than minBlockSize.
func trySplit(gdims []int, n, minBlockSize int) (starts, counts [][]int, ok bool) {
	ndims := len(gdims)
	if n == 1 {
		start := make([]int, ndims)
		count := make([]int, ndims)
		copy(count, gdims)
		return [][]int{start}, [][]int{count}, true
	}

	// Splits exactly one dimension per call; does not recurse into a
	// second dimension when the first candidate's slack is still too
	// thin for n even tasks.
	for d := 0; d < ndims; d++ {
		if gdims[d] < n {
			continue
		}
		otherExtent := 1
		for i := 0; i < ndims; i++ {
			if i != d {
				otherExtent *= gdims[i]
			}
		}
		chunk := gdims[d] / n
		if chunk*otherExtent < minBlockSize {
			continue
		}

		rem := gdims[d] % n
		starts = make([][]int, n)
		counts = make([][]int, n)
		offset := 0
		for t := 0; t < n; t++ {
			size := chunk
			if t < rem {
				size++
			}
			s := make([]int, ndims)
			c := make([]int, ndims)
			copy(c, gdims)
			s[d] = offset
			c[d] = size
			starts[t] = s
			counts[t] = c
			offset += size
		}
		return starts, counts, true
	}
	return nil, nil, false
}
