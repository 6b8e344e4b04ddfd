package decomp

import (
	"context"
	"sort"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/region"
)

// subsetShare is what one compute rank publishes to its group's I/O
// task: its own (1-based, hole-zeroed) compute map, verbatim.
type subsetShare struct {
	groupID int
	compMap []int64
}

// BuildSubsetPlan implements the SUBSET rearranger (spec §4.5): compute
// ranks are partitioned into groups, each served by exactly one I/O
// task, and every compute rank sends only to its own group's task.
// groupOf(rank) returns the group id (0..numGroups-1) a rank belongs to;
// ioRanks[g] names the rank that is group g's I/O task.
func BuildSubsetPlan(ctx context.Context, g *comm.Group, rank int, gdims []int, compMap []int64,
	groupOf func(rank int) int, ioRanks []int) (*Plan, error) {

	myGroup := groupOf(rank)
	plan := &Plan{
		Rearranger: api.RearrangerSubset,
		NDOF:       len(compMap),
	}
	for _, idx := range compMap {
		if idx == 0 {
			plan.HoleGridSize++
		} else {
			plan.LLen++
		}
	}

	shareColl := comm.NewCollective[subsetShare](g)
	shareColl.Set(rank, subsetShare{groupID: myGroup, compMap: compMap})
	if err := shareColl.Wait(ctx); err != nil {
		return nil, err
	}

	for taskID, ioRank := range ioRanks {
		if ioRank != rank {
			continue
		}
		plan.IsIORank = true
		plan.IOTaskID = taskID

		// Gather (concatenate) the maps of every rank in this group,
		// remembering which source rank each entry came from so RIndex/
		// RFrom can be reconstructed after the sort.
		type entry struct {
			gidx int64
			src  int
			pos  int
		}
		var entries []entry
		for c := 0; c < g.Size(); c++ {
			sh := shareColl.Get(c)
			if sh.groupID != taskID {
				continue
			}
			for pos, idx := range sh.compMap {
				if idx != 0 {
					entries = append(entries, entry{gidx: idx, src: c, pos: pos})
				}
			}
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].gidx < entries[j].gidx })

		sortedMap := make([]int64, len(entries))
		for i, e := range entries {
			sortedMap[i] = e.gidx
		}
		regions := region.BuildRegions(gdims, sortedMap)
		plan.Regions = regions

		rcountBySrc := map[int]int{}
		var srcOrder []int
		for _, e := range entries {
			if _, ok := rcountBySrc[e.src]; !ok {
				srcOrder = append(srcOrder, e.src)
			}
			rcountBySrc[e.src]++
		}
		sort.Ints(srcOrder)
		for _, src := range srcOrder {
			plan.RCount = append(plan.RCount, rcountBySrc[src])
			plan.RFrom = append(plan.RFrom, src)
		}
		for i, e := range entries {
			coord := region.IdxToDimList(gdims, e.gidx-1)
			plan.RIndex = append(plan.RIndex, localOffsetWithinRegionList(coord, regions))
			_ = i
		}

		plan.FillRegions, plan.FillOffsets = fillGaps(gdims, regions)
	}

	needsFill, err := allreduceNeedsFill(ctx, g, rank, plan.HoleGridSize)
	if err != nil {
		return nil, err
	}
	plan.NeedsFill = needsFill || len(plan.FillRegions) > 0

	return plan, nil
}

// localOffsetWithinRegionList converts a global coordinate into an
// offset relative to the start of the region list's packed storage:
// regions are stored back to back, so the offset is the sum of the
// sizes of every region before the one containing coord, plus this
// coordinate's offset within its own region.
func localOffsetWithinRegionList(coord []int, regions []region.Region) int64 {
	var base int64
	for _, r := range regions {
		if boxContains(coord, r.Start, r.Count) {
			return base + localOffset(coord, r.Start, r.Count)
		}
		base += r.Size()
	}
	return -1
}

// fillGaps reports the regions within the I/O task's own bounding
// extent (the span from its first to last region) that BuildSubsetPlan's
// sorted region list does not cover — the SUBSET rearranger's
// FillRegion list (spec §4.5.2: "gaps within the I/O task's portion
// become entries in fillregion").
func fillGaps(gdims []int, regions []region.Region) ([]region.Region, []int64) {
	if len(regions) < 2 {
		return nil, nil
	}
	var gaps []region.Region
	var offsets []int64
	var packed int64
	packed += regions[0].Size()
	for i := 1; i < len(regions); i++ {
		prevEnd := region.CoordToLIndex(gdims, addVec(regions[i-1].Start, regions[i-1].Count, -1))
		curStart := region.CoordToLIndex(gdims, regions[i].Start)
		if curStart-prevEnd > 1 {
			gapLen := int(curStart - prevEnd - 1)
			start := region.IdxToDimList(gdims, prevEnd+1)
			count := make([]int, len(gdims))
			count[len(count)-1] = gapLen
			for d := 0; d < len(count)-1; d++ {
				count[d] = 1
			}
			gaps = append(gaps, region.Region{Start: start, Count: count})
			offsets = append(offsets, packed)
		}
		packed += regions[i].Size()
	}
	return gaps, offsets
}

// addVec returns the coordinates of a region's last element
// (start+count-1 per dimension); its third argument is ignored.
func addVec(start, count []int, _ int) []int {
	out := make([]int, len(start))
	for d := range start {
		out[d] = start[d] + count[d] - 1
	}
	return out
}
