package decomp

import (
	"context"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/region"
)

// boxShare is what one compute rank publishes for the reconstruction
// round: for each I/O task, the ordered list of global (1-based) indices
// it is sending there. I/O ranks use it to rebuild RIndex/RFrom in their
// own local coordinate system — the in-process stand-in for "a further
// exchange communicate[s] which source ranks contribute" (spec §4.4.3).
type boxShare struct {
	idxByPeer [][]int64
}

// BuildBoxPlan implements the BOX rearranger's five construction steps
// (spec §4.4): bounding-box membership test per non-zero compute-map
// entry, scount/sindex construction, the scount<->rcount exchange (done
// implicitly by every rank publishing its full per-peer index lists),
// rindex reconstruction in I/O-local coordinates, and NeedsFill
// computation. ioRanks[p] names the group rank that owns I/O task p;
// ioStarts[p]/ioCounts[p] are that task's bounding box, as produced by
// iomap.CalcStartAndCount (identical on every rank, no communication
// needed to agree on them).
func BuildBoxPlan(ctx context.Context, g *comm.Group, rank int, gdims []int, compMap []int64,
	ioRanks []int, ioStarts, ioCounts [][]int) (*Plan, error) {

	numIOTasks := len(ioRanks)
	plan := &Plan{
		Rearranger: api.RearrangerBox,
		NDOF:       len(compMap),
		SCount:     make([]int, numIOTasks),
	}

	idxByPeer := make([][]int64, numIOTasks)
	offByPeer := make([][]int, numIOTasks)

	for off, idx := range compMap {
		if idx == 0 {
			plan.HoleGridSize++
			continue
		}
		plan.LLen++
		coord := region.IdxToDimList(gdims, idx-1)
		p := memberOf(coord, ioStarts, ioCounts)
		if p < 0 {
			continue // compute map entry falls outside every I/O slab; dropped silently like an unassigned global index
		}
		idxByPeer[p] = append(idxByPeer[p], idx)
		offByPeer[p] = append(offByPeer[p], off)
		plan.SCount[p]++
	}
	for p := 0; p < numIOTasks; p++ {
		plan.SIndex = append(plan.SIndex, offByPeer[p]...)
	}

	shareColl := comm.NewCollective[boxShare](g)
	shareColl.Set(rank, boxShare{idxByPeer: idxByPeer})
	if err := shareColl.Wait(ctx); err != nil {
		return nil, err
	}

	for p, ioRank := range ioRanks {
		if ioRank != rank {
			continue
		}
		plan.IsIORank = true
		plan.IOTaskID = p
		plan.Regions = []region.Region{{Start: ioStarts[p], Count: ioCounts[p]}}

		for c := 0; c < g.Size(); c++ {
			entries := shareColl.Get(c).idxByPeer[p]
			if len(entries) == 0 {
				continue
			}
			plan.RCount = append(plan.RCount, len(entries))
			plan.RFrom = append(plan.RFrom, c)
			for _, gidx := range entries {
				coord := region.IdxToDimList(gdims, gidx-1)
				plan.RIndex = append(plan.RIndex, localOffset(coord, ioStarts[p], ioCounts[p]))
			}
		}
	}

	needsFill, err := allreduceNeedsFill(ctx, g, rank, plan.HoleGridSize)
	if err != nil {
		return nil, err
	}
	plan.NeedsFill = needsFill

	return plan, nil
}
