package comm

import "context"

// SwapmPlan describes one rank's side of a throttled all-to-all,
// mirroring pio_swapm's (sndlths, sdispls, rcvlths, rdispls) arguments.
// Datatypes are erased to byte slices sliced by displacement/length —
// the Go rendition of "per-peer MPI_Datatype", since the derived
// sub-array MPI types in the source only ever describe a contiguous
// byte range once laid out by the rearranger (decomp package).
type SwapmPlan struct {
	// SendBuf is this rank's outgoing buffer; SendLen[p]/SendDispl[p]
	// slice out the bytes destined for peer p.
	SendBuf   []byte
	SendLen   []int
	SendDispl []int

	// RecvBuf is this rank's incoming buffer; RecvLen[p]/RecvDispl[p]
	// slice out where peer p's bytes land.
	RecvBuf   []byte
	RecvLen   []int
	RecvDispl []int

	// MaxReq: 0 degenerates to a single logical all-to-all; >0 throttles
	// to at most MaxReq in-flight receives, hypercube-paired.
	MaxReq int
	// Handshake: gate each send behind a ready signal from the receiver.
	Handshake bool
	// Isend: passed through to every send; Group.send treats both
	// settings the same (see its comment).
	Isend bool
}

// ceil2 returns the smallest power of two >= i (pio_spmd.c ceil2, which
// is in fact "smallest power of two strictly greater than i-1").
func ceil2(i int) int {
	p := 1
	for p < i {
		p *= 2
	}
	return p
}

// pair returns the hypercube partner of rank p at step k, p XOR (k+1),
// or -1 if that partner is out of range (pio_spmd.c's `pair`).
func pair(np, p, k int) int {
	q := p ^ (k + 1)
	if q > np-1 || q < 0 {
		return -1
	}
	return q
}

// Swapm performs the throttled, handshake-optional all-to-all described
// in SPEC_FULL.md §4.1. Every rank in g must call Swapm concurrently
// (one call per rank's goroutine) with its own plan.
func Swapm(ctx context.Context, g *Group, rank int, plan SwapmPlan) error {
	if err := g.checkRank(rank); err != nil {
		return err
	}
	n := g.Size()

	// Self-traffic is handled first and directly: no channel round trip
	// needed since sender and receiver are the same rank.
	if plan.SendLen[rank] > 0 {
		sOff := plan.SendDispl[rank]
		copy(plan.RecvBuf[plan.RecvDispl[rank]:plan.RecvDispl[rank]+plan.RecvLen[rank]],
			plan.SendBuf[sOff:sOff+plan.SendLen[rank]])
	}
	if n == 1 {
		return nil
	}

	if plan.MaxReq == 0 {
		return swapmSingleWave(ctx, g, rank, plan)
	}
	return swapmThrottled(ctx, g, rank, plan)
}

// swapmSingleWave is the max_requests==0 "default mpi_alltoallw" path:
// every peer exchanged in one wave, no throttling.
func swapmSingleWave(ctx context.Context, g *Group, rank int, plan SwapmPlan) error {
	n := g.Size()
	errCh := make(chan error, 2*n)
	done := make(chan struct{})
	go func() {
		for p := 0; p < n; p++ {
			if p == rank || plan.RecvLen[p] == 0 {
				continue
			}
			go func(p int) {
				data, err := g.recv(ctx, p, rank)
				if err != nil {
					errCh <- err
					return
				}
				copy(plan.RecvBuf[plan.RecvDispl[p]:plan.RecvDispl[p]+plan.RecvLen[p]], data)
				errCh <- nil
			}(p)
		}
		for p := 0; p < n; p++ {
			if p == rank || plan.SendLen[p] == 0 {
				continue
			}
			go func(p int) {
				off := plan.SendDispl[p]
				errCh <- g.send(ctx, rank, p, rank, plan.SendBuf[off:off+plan.SendLen[p]], plan.Isend)
			}(p)
		}
		close(done)
	}()
	<-done

	var firstErr error
	waits := 0
	for p := 0; p < n; p++ {
		if p != rank && plan.RecvLen[p] > 0 {
			waits++
		}
		if p != rank && plan.SendLen[p] > 0 {
			waits++
		}
	}
	for i := 0; i < waits; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// swapmThrottled implements the hypercube-paired, max_req-bounded path
// of pio_swapm: at most MaxReq receives in flight at a time, optional
// handshake gating on the sender side.
func swapmThrottled(ctx context.Context, g *Group, rank int, plan SwapmPlan) error {
	n := g.Size()

	swapids := make([]int, 0, n)
	for istep := 0; istep < ceil2(n)-1; istep++ {
		p := pair(n, rank, istep)
		if p >= 0 && (plan.SendLen[p] > 0 || plan.RecvLen[p] > 0) {
			swapids = append(swapids, p)
		}
	}
	steps := len(swapids)
	if steps == 0 {
		return nil
	}

	var maxreq int
	switch {
	case steps == 1:
		maxreq = 1
	case plan.MaxReq > 1 && plan.MaxReq < steps:
		maxreq = plan.MaxReq
	case plan.MaxReq >= steps:
		maxreq = steps
	default:
		maxreq = 2
	}

	type pending struct {
		peer int
		ch   chan error
	}
	recvDone := make([]pending, steps)

	postRecv := func(idx int) {
		p := swapids[idx]
		ch := make(chan error, 1)
		recvDone[idx] = pending{peer: p, ch: ch}
		if plan.RecvLen[p] == 0 {
			ch <- nil
			return
		}
		go func() {
			if plan.Handshake {
				if err := g.handshakeSend(ctx, rank, p); err != nil {
					ch <- err
					return
				}
			}
			data, err := g.recv(ctx, p, rank)
			if err != nil {
				ch <- err
				return
			}
			copy(plan.RecvBuf[plan.RecvDispl[p]:plan.RecvDispl[p]+plan.RecvLen[p]], data)
			ch <- nil
		}()
	}

	sendTo := func(p int) error {
		if plan.SendLen[p] == 0 {
			return nil
		}
		if plan.Handshake {
			if err := g.handshakeRecv(ctx, p, rank); err != nil {
				return err
			}
		}
		off := plan.SendDispl[p]
		return g.send(ctx, rank, p, p, plan.SendBuf[off:off+plan.SendLen[p]], plan.Isend)
	}

	// Prepost the first wave of receives.
	for i := 0; i < maxreq; i++ {
		postRecv(i)
	}

	var firstErr error
	rstep := maxreq
	for istep := 0; istep < steps; istep++ {
		if istep >= maxreq && rstep < steps {
			// Drain the oldest outstanding receive and post this step's one
			// before sending, so a handshake partner never waits on our send.
			oldest := istep - maxreq
			if err := <-recvDone[oldest].ch; err != nil && firstErr == nil {
				firstErr = err
			}
			postRecv(rstep)
			rstep++
		}
		p := swapids[istep]
		if err := sendTo(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Drain whatever receives have not yet been waited on.
	start := steps - maxreq
	if start < 0 {
		start = 0
	}
	for i := start; i < steps; i++ {
		if recvDone[i].ch == nil {
			continue
		}
		if err := <-recvDone[i].ch; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Final sweep: make sure every posted receive has actually been drained.
	for i := 0; i < steps; i++ {
		if recvDone[i].ch == nil {
			continue
		}
		select {
		case err, ok := <-recvDone[i].ch:
			if ok && err != nil && firstErr == nil {
				firstErr = err
			}
		default:
		}
	}
	return firstErr
}
