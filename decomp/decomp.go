// Package decomp holds the decomposition (IODesc) data model and the
// two rearranger algorithms, BOX and SUBSET, that turn a compute-side
// index map into the all-to-all communication plan a comm.Swapm call
// executes (spec §3 IODesc, §4.4 C5, §4.5 C6).
package decomp

import (
	"context"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/region"
)

// Plan is the derived communication plan for one rank's view of a
// decomposition — the Go rendition of IODesc's scount/sindex/rcount/
// rfrom/rindex fields plus the region list and fill metadata. A Plan is
// built once by BuildBoxPlan or BuildSubsetPlan and returned to the
// caller, which keeps it for the lifetime of the decomposition. There is
// no separate IODesc type or Close method; a Plan holds only slices.
type Plan struct {
	Rearranger api.Rearranger
	ElemType   api.ElementType

	// NDOF is the length of this rank's compute map; LLen is the number
	// of non-hole entries in it.
	NDOF int
	LLen int

	// SCount[p] is the number of elements this rank sends to I/O task p;
	// SIndex concatenates, in destination-group order, the compute-
	// buffer offsets of the elements sent. Meaningful on compute ranks.
	SCount []int
	SIndex []int

	// RCount[c] is the number of elements this I/O rank receives from
	// compute rank c; RFrom lists the contributing compute ranks in the
	// order RIndex's segments appear; RIndex holds each received
	// element's offset within this I/O rank's local slab (row-major).
	// Meaningful on I/O ranks only (IsIORank == true).
	RCount []int
	RFrom  []int
	RIndex []int64

	IsIORank bool
	IOTaskID int

	// Regions is this I/O rank's region list: the contiguous hyperslabs
	// covering its portion of the global array.
	Regions []region.Region
	// FillRegions lists the gaps within Regions that must receive the
	// fill value rather than rearranged data (SUBSET only; BOX instead
	// pre-fills its whole slab up front, see NeedsFill). FillOffsets[i]
	// is FillRegions[i]'s starting offset within the packed region-list
	// storage (the same linear space RIndex addresses).
	FillRegions []region.Region
	FillOffsets []int64

	NeedsFill    bool
	HoleGridSize int
}

// memberOf returns the I/O task index whose bounding box contains coord,
// or -1 if none does (which should not happen once iomap.CalcStartAndCount
// has tiled the global array exactly once).
func memberOf(coord []int, ioStarts, ioCounts [][]int) int {
	for p := range ioStarts {
		if boxContains(coord, ioStarts[p], ioCounts[p]) {
			return p
		}
	}
	return -1
}

func boxContains(coord, start, count []int) bool {
	for d := range coord {
		if coord[d] < start[d] || coord[d] >= start[d]+count[d] {
			return false
		}
	}
	return true
}

// localOffset converts a global coordinate into a 0-based linear offset
// within an I/O task's local slab, given that slab's start and extent.
func localOffset(coord, start, count []int) int64 {
	local := make([]int, len(coord))
	for d := range coord {
		local[d] = coord[d] - start[d]
	}
	return region.CoordToLIndex(count, local)
}

// allreduceNeedsFill reports whether any rank in g has a non-zero hole
// count, via the same MAX all-reduce PIOc_write_darray uses to unify its
// flush decision (SPEC_FULL.md §9, preserved verbatim per DESIGN.md).
func allreduceNeedsFill(ctx context.Context, g *comm.Group, rank, holeGridSize int) (bool, error) {
	flag := 0
	if holeGridSize > 0 {
		flag = 1
	}
	max, err := comm.AllreduceMax(ctx, g, rank, flag)
	if err != nil {
		return false, err
	}
	return max > 0, nil
}
