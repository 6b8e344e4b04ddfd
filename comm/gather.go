package comm

import "context"

// MaxGatherBlockSize caps the flow-control window for FCGather/FCGatherv,
// mirroring pio_spmd.c's MAX_GATHER_BLOCK_SIZE.
const MaxGatherBlockSize = 64

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// FCGather is MPI_Gather with an optional flow-controlled variant, a
// direct port of pio_fc_gather. Every rank in g calls FCGather; only
// root's recvBuf/recvCnt are meaningful. flowCntl <= 0 degenerates to a
// plain (unthrottled) gather.
func FCGather(ctx context.Context, g *Group, rank int, sendBuf []byte, sendCnt int,
	recvBuf []byte, recvCnt int, root, flowCntl int) error {

	n := g.Size()
	if flowCntl <= 0 {
		return plainGather(ctx, g, rank, sendBuf, sendCnt, recvBuf, recvCnt, root)
	}

	blockSize := min(flowCntl, MaxGatherBlockSize)

	if rank == root {
		preposts := min(n-1, blockSize)
		type slot struct {
			ch chan []byte
			p  int
		}
		pending := make([]slot, 0, preposts)
		head := 0

		copy(recvBuf[root*recvCnt:root*recvCnt+sendCnt], sendBuf[:sendCnt])

		post := func(p int) slot {
			ch := make(chan []byte, 1)
			go func() {
				if err := g.handshakeSend(ctx, root, p); err != nil {
					ch <- nil
					return
				}
				data, err := g.recv(ctx, p, root)
				if err != nil {
					ch <- nil
					return
				}
				ch <- data
			}()
			return slot{ch: ch, p: p}
		}

		count := 0
		for p := 0; p < n; p++ {
			if p == root || recvCnt <= 0 {
				continue
			}
			count++
			if count > preposts {
				s := pending[head%preposts]
				data := <-s.ch
				if data != nil {
					copy(recvBuf[s.p*recvCnt:s.p*recvCnt+recvCnt], data)
				}
				pending[head%preposts] = post(p)
			} else {
				pending = append(pending, post(p))
			}
			head++
		}
		drainFrom := 0
		if count > preposts {
			drainFrom = head % preposts
		}
		toDrain := min(count, preposts)
		for i := 0; i < toDrain; i++ {
			s := pending[(drainFrom+i)%len(pending)]
			data := <-s.ch
			if data != nil {
				copy(recvBuf[s.p*recvCnt:s.p*recvCnt+recvCnt], data)
			}
		}
		return nil
	}

	if sendCnt > 0 {
		if err := g.handshakeRecv(ctx, root, rank); err != nil {
			return err
		}
		return g.send(ctx, rank, root, rank, sendBuf[:sendCnt], false)
	}
	return nil
}

func plainGather(ctx context.Context, g *Group, rank int, sendBuf []byte, sendCnt int,
	recvBuf []byte, recvCnt int, root int) error {
	if rank == root {
		copy(recvBuf[root*recvCnt:root*recvCnt+sendCnt], sendBuf[:sendCnt])
		n := g.Size()
		errCh := make(chan error, n)
		waits := 0
		for p := 0; p < n; p++ {
			if p == root {
				continue
			}
			waits++
			go func(p int) {
				data, err := g.recv(ctx, p, root)
				if err != nil {
					errCh <- err
					return
				}
				copy(recvBuf[p*recvCnt:p*recvCnt+recvCnt], data)
				errCh <- nil
			}(p)
		}
		var firstErr error
		for i := 0; i < waits; i++ {
			if err := <-errCh; err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return g.send(ctx, rank, root, rank, sendBuf[:sendCnt], false)
}

// FCGatherv is MPI_Gatherv with an optional flow-controlled variant, a
// direct port of pio_fc_gatherv. recvCnts/displs (in bytes) are
// significant only at root.
func FCGatherv(ctx context.Context, g *Group, rank int, sendBuf []byte, sendCnt int,
	recvBuf []byte, recvCnts, displs []int, root, flowCntl int) error {

	n := g.Size()
	if flowCntl <= 0 {
		return plainGatherv(ctx, g, rank, sendBuf, sendCnt, recvBuf, recvCnts, displs, root)
	}
	blockSize := min(flowCntl, MaxGatherBlockSize)

	if rank == root {
		preposts := min(n-1, blockSize)
		type slot struct {
			ch chan []byte
			p  int
		}
		pending := make([]slot, 0, preposts)
		head := 0

		if sendCnt > 0 {
			copy(recvBuf[displs[root]:displs[root]+sendCnt], sendBuf[:sendCnt])
		}

		post := func(p int) slot {
			ch := make(chan []byte, 1)
			go func() {
				if err := g.handshakeSend(ctx, root, p); err != nil {
					ch <- nil
					return
				}
				data, err := g.recv(ctx, p, root)
				if err != nil {
					ch <- nil
					return
				}
				ch <- data
			}()
			return slot{ch: ch, p: p}
		}

		count := 0
		for p := 0; p < n; p++ {
			if p == root || recvCnts[p] <= 0 {
				continue
			}
			count++
			if count > preposts {
				s := pending[head%preposts]
				data := <-s.ch
				if data != nil {
					copy(recvBuf[displs[s.p]:displs[s.p]+recvCnts[s.p]], data)
				}
				pending[head%preposts] = post(p)
			} else {
				pending = append(pending, post(p))
			}
			head++
		}
		drainFrom := 0
		if count > preposts {
			drainFrom = head % preposts
		}
		toDrain := min(count, preposts)
		for i := 0; i < toDrain; i++ {
			s := pending[(drainFrom+i)%len(pending)]
			data := <-s.ch
			if data != nil {
				copy(recvBuf[displs[s.p]:displs[s.p]+recvCnts[s.p]], data)
			}
		}
		return nil
	}

	if sendCnt > 0 {
		if err := g.handshakeRecv(ctx, root, rank); err != nil {
			return err
		}
		return g.send(ctx, rank, root, rank, sendBuf[:sendCnt], false)
	}
	return nil
}

func plainGatherv(ctx context.Context, g *Group, rank int, sendBuf []byte, sendCnt int,
	recvBuf []byte, recvCnts, displs []int, root int) error {
	if rank == root {
		if sendCnt > 0 {
			copy(recvBuf[displs[root]:displs[root]+sendCnt], sendBuf[:sendCnt])
		}
		n := g.Size()
		errCh := make(chan error, n)
		waits := 0
		for p := 0; p < n; p++ {
			if p == root || recvCnts[p] <= 0 {
				continue
			}
			waits++
			go func(p int) {
				data, err := g.recv(ctx, p, root)
				if err != nil {
					errCh <- err
					return
				}
				copy(recvBuf[displs[p]:displs[p]+recvCnts[p]], data)
				errCh <- nil
			}(p)
		}
		var firstErr error
		for i := 0; i < waits; i++ {
			if err := <-errCh; err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	if sendCnt > 0 {
		return g.send(ctx, rank, root, rank, sendBuf[:sendCnt], false)
	}
	return nil
}
