package darray

import (
	"context"
	"fmt"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/decomp"
	"github.com/momentics/pario/iobuf"
	"github.com/momentics/pario/pfile"
	"github.com/momentics/pario/plog"
)

// WriteDarray writes a single variable through its bound decomposition —
// a thin convenience over WriteDarrayMulti for the common one-variable
// case (pio_darray.c's PIOc_write_darray wraps write_darray_multi the
// same way).
func WriteDarray(ctx context.Context, g *comm.Group, rank int, f *pfile.File, plan *decomp.Plan,
	ioRanks []int, vid, frame int, elemType api.ElementType, fillValue, localData []byte, flushToDisk bool) error {
	return WriteDarrayMulti(ctx, g, rank, f, plan, ioRanks,
		[]int{vid}, []int{frame}, elemType, [][]byte{fillValue}, [][]byte{localData}, flushToDisk)
}

// WriteDarrayMulti rearranges nvars variables sharing one decomposition
// from compute space to I/O space, appends each to the file's write
// buffer for plan's decomposition, and flushes — mirroring
// PIOc_write_darray_multi's buffer-then-collective-write shape, folded
// here into one call since this module's write buffer is per-(file,
// iodesc) rather than cached across many separate write_darray calls.
func WriteDarrayMulti(ctx context.Context, g *comm.Group, rank int, f *pfile.File, plan *decomp.Plan,
	ioRanks []int, vids, frames []int, elemType api.ElementType, fillValues, localArrays [][]byte, flushToDisk bool) error {

	if len(vids) == 0 {
		return fmt.Errorf("darray: WriteDarrayMulti called with no variables")
	}
	if len(vids) != len(localArrays) || len(vids) != len(frames) {
		return fmt.Errorf("darray: vids/frames/localArrays length mismatch")
	}

	elemSize := elemType.Size()
	// Decompositions are not registered and carry no handle; the I/O
	// task id serves as the write-buffer key, so decompositions with the
	// same I/O task id share one buffer on a File.
	iodescID := plan.IOTaskID
	buf, ok := f.WriteBuffer(iodescID)
	if !ok {
		arrayLen := 0
		if plan.IsIORank {
			arrayLen = regionsElemCount(plan)
		}
		f.BindDecomp(vids[0], iodescID, plan.Rearranger, arrayLen, elemType)
		buf, _ = f.WriteBuffer(iodescID)
	}

	for i, vid := range vids {
		var fillValue []byte
		if plan.NeedsFill && plan.Rearranger == api.RearrangerBox && i < len(fillValues) {
			fillValue = fillValues[i]
		}
		slab, err := RearrangeCompToIO(ctx, g, rank, plan, elemSize, localArrays[i], ioRanks, fillValue)
		if err != nil {
			return fmt.Errorf("darray: var %d: %w", vid, err)
		}
		if !plan.IsIORank {
			continue
		}
		if plan.Rearranger == api.RearrangerSubset && plan.NeedsFill && i < len(fillValues) && fillValues[i] != nil {
			applyFillRegions(slab, plan, elemSize, fillValues[i])
		}
		if err := buf.Append(vid, frames[i], fillValueOrNil(fillValues, i), slab); err != nil {
			return fmt.Errorf("darray: append var %d: %w", vid, err)
		}
	}

	if !plan.IsIORank || buf.ValidVars() == 0 {
		return nil
	}
	kind := iobuf.FlushToIO
	if flushToDisk {
		kind = iobuf.FlushToDisk
	}
	plog.Rank(rank).WithField("file", int(f.Handle)).WithField("vars", vids).
		WithField("flushToDisk", flushToDisk).Debug("darray: flushing write buffer")
	return buf.Flush(ctx, f.System.Driver, kind)
}

// ReadDarray reads a variable's decomposed portion back into localData,
// the read-path inverse of WriteDarray: the I/O rank pulls its slab from
// the backend driver, then RearrangeIOToComp scatters it to every
// contributing compute rank.
func ReadDarray(ctx context.Context, g *comm.Group, rank int, f *pfile.File, plan *decomp.Plan,
	ioRanks []int, vid int, elemType api.ElementType, localData []byte) error {

	elemSize := elemType.Size()
	var ioSlab []byte
	if plan.IsIORank {
		ioSlab = make([]byte, regionsElemCount(plan)*elemSize)
		if err := f.System.Driver.GetVars(ctx, int(f.Handle), vid, nil, nil, ioSlab); err != nil {
			plog.Rank(rank).WithField("file", int(f.Handle)).WithField("var", vid).WithError(err).Warn("darray: read failed")
			return fmt.Errorf("darray: read var %d: %w", vid, err)
		}
		plog.Rank(rank).WithField("file", int(f.Handle)).WithField("var", vid).Debug("darray: read from backend")
	}
	return RearrangeIOToComp(ctx, g, rank, plan, elemSize, ioSlab, localData, ioRanks)
}

func applyFillRegions(slab []byte, plan *decomp.Plan, elemSize int, fillValue []byte) {
	for i, off := range plan.FillOffsets {
		count := plan.FillRegions[i].Size()
		start := int(off) * elemSize
		for j := int64(0); j < count; j++ {
			copy(slab[start+int(j)*elemSize:start+int(j+1)*elemSize], fillValue)
		}
	}
}

func fillValueOrNil(fillValues [][]byte, i int) []byte {
	if i < len(fillValues) {
		return fillValues[i]
	}
	return nil
}
