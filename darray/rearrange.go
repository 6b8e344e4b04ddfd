// Package darray implements the distributed-array write/read path (spec
// §3 write_darray/read_darray, §4.9 C9): ties decomp.Plan's communication
// plan to a comm.Swapm exchange and iobuf.WriteMultiBuffer's aggregation,
// the Go rendition of pio_darray.c's PIOc_write_darray_multi /
// rearrange_comp2io / rearrange_io2comp.
package darray

import (
	"context"
	"fmt"

	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/decomp"
)

// RearrangeCompToIO moves one rank's compute-space data into its
// I/O-space slab per plan, via a single comm.Swapm all-to-all. Every
// rank in g (compute and I/O alike) must call this concurrently with
// its own localData (nil/empty on pure I/O ranks that contribute
// nothing). The returned slab is only meaningful when plan.IsIORank;
// non-I/O-rank callers get a nil slice. fillValue, when non-nil, seeds
// every slab element with the fill value before rearranged data
// overwrites the positions plan.RIndex names — the BOX rearranger's
// "pre-fill before rearrange" behavior (pio_darray.c's
// PIOc_write_darray_multi, `needsfill && rearranger == PIO_REARR_BOX`).
func RearrangeCompToIO(ctx context.Context, g *comm.Group, rank int, plan *decomp.Plan,
	elemSize int, localData []byte, ioRanks []int, fillValue []byte) ([]byte, error) {

	n := g.Size()
	sendBuf := make([]byte, 0, len(plan.SIndex)*elemSize)
	for _, off := range plan.SIndex {
		start := off * elemSize
		sendBuf = append(sendBuf, localData[start:start+elemSize]...)
	}
	sendLen := make([]int, n)
	sendDispl := make([]int, n)
	cursor := 0
	for p, cnt := range plan.SCount {
		if cnt == 0 {
			continue
		}
		peer := ioRanks[p]
		sendLen[peer] = cnt * elemSize
		sendDispl[peer] = cursor
		cursor += cnt * elemSize
	}

	var slabLen int
	if plan.IsIORank {
		slabLen = regionsElemCount(plan) * elemSize
	}
	recvTotal := 0
	for _, cnt := range plan.RCount {
		recvTotal += cnt
	}
	recvBuf := make([]byte, recvTotal*elemSize)
	recvLen := make([]int, n)
	recvDispl := make([]int, n)
	cursor = 0
	for i, cnt := range plan.RCount {
		peer := plan.RFrom[i]
		recvLen[peer] = cnt * elemSize
		recvDispl[peer] = cursor
		cursor += cnt * elemSize
	}

	swapPlan := comm.SwapmPlan{
		SendBuf: sendBuf, SendLen: sendLen, SendDispl: sendDispl,
		RecvBuf: recvBuf, RecvLen: recvLen, RecvDispl: recvDispl,
	}
	if err := comm.Swapm(ctx, g, rank, swapPlan); err != nil {
		return nil, fmt.Errorf("darray: rearrange comp->io: %w", err)
	}
	if !plan.IsIORank {
		return nil, nil
	}

	slab := make([]byte, slabLen)
	if fillValue != nil {
		for i := 0; i < slabLen/elemSize; i++ {
			copy(slab[i*elemSize:(i+1)*elemSize], fillValue)
		}
	}
	segCursor := 0
	rindexPos := 0
	for _, cnt := range plan.RCount {
		for j := 0; j < cnt; j++ {
			dst := int(plan.RIndex[rindexPos]) * elemSize
			src := segCursor + j*elemSize
			copy(slab[dst:dst+elemSize], recvBuf[src:src+elemSize])
			rindexPos++
		}
		segCursor += cnt * elemSize
	}
	return slab, nil
}

// RearrangeIOToComp is the read-path inverse: gathers this I/O rank's
// slab entries named by plan.RIndex back to every contributing compute
// rank's local buffer. localData (on a compute rank) must already be
// sized len(compMap)*elemSize; entries not covered by plan are left
// untouched (the caller applies any fill value first).
func RearrangeIOToComp(ctx context.Context, g *comm.Group, rank int, plan *decomp.Plan,
	elemSize int, ioSlab []byte, localData []byte, ioRanks []int) error {

	n := g.Size()
	sendBuf := make([]byte, 0)
	sendLen := make([]int, n)
	sendDispl := make([]int, n)
	if plan.IsIORank {
		cursor := 0
		for i, cnt := range plan.RCount {
			peer := plan.RFrom[i]
			sendLen[peer] = cnt * elemSize
			sendDispl[peer] = cursor
			cursor += cnt * elemSize
		}
		sendBuf = make([]byte, cursor)
		segCursor := 0
		rindexPos := 0
		for _, cnt := range plan.RCount {
			for j := 0; j < cnt; j++ {
				src := int(plan.RIndex[rindexPos]) * elemSize
				dst := segCursor + j*elemSize
				copy(sendBuf[dst:dst+elemSize], ioSlab[src:src+elemSize])
				rindexPos++
			}
			segCursor += cnt * elemSize
		}
	}

	recvTotal := 0
	for _, cnt := range plan.SCount {
		recvTotal += cnt
	}
	recvBuf := make([]byte, recvTotal*elemSize)
	recvLen := make([]int, n)
	recvDispl := make([]int, n)
	cursor := 0
	for p, cnt := range plan.SCount {
		if cnt == 0 {
			continue
		}
		peer := ioRanks[p]
		recvLen[peer] = cnt * elemSize
		recvDispl[peer] = cursor
		cursor += cnt * elemSize
	}

	swapPlan := comm.SwapmPlan{
		SendBuf: sendBuf, SendLen: sendLen, SendDispl: sendDispl,
		RecvBuf: recvBuf, RecvLen: recvLen, RecvDispl: recvDispl,
	}
	if err := comm.Swapm(ctx, g, rank, swapPlan); err != nil {
		return fmt.Errorf("darray: rearrange io->comp: %w", err)
	}

	recvCursor := 0
	for p, cnt := range plan.SCount {
		if cnt == 0 {
			continue
		}
		for j := 0; j < cnt; j++ {
			off := plan.SIndex[indexOfSendSegment(plan, p)+j] * elemSize
			src := recvCursor + j*elemSize
			copy(localData[off:off+elemSize], recvBuf[src:src+elemSize])
		}
		recvCursor += cnt * elemSize
	}
	return nil
}

// indexOfSendSegment returns the starting position within plan.SIndex of
// I/O task p's segment (SIndex is concatenated in ascending task-index
// order, so this is just a prefix sum over SCount).
func indexOfSendSegment(plan *decomp.Plan, p int) int {
	start := 0
	for i := 0; i < p; i++ {
		start += plan.SCount[i]
	}
	return start
}

// regionsElemCount sums the element count of every region in plan's
// region list — the io-local slab's total length.
func regionsElemCount(plan *decomp.Plan) int {
	total := 0
	for _, r := range plan.Regions {
		total += int(r.Size())
	}
	return total
}
