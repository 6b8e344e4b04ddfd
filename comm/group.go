// Package comm models one MPI communicator as a fixed set of in-process
// goroutine endpoints (see SPEC_FULL.md §0 for why: no MPI binding
// exists anywhere in the retrieved reference corpus). A Group plays the
// role of an MPI_Comm; a Rank is one participant. Every exported method
// that is collective in the source library blocks the calling goroutine
// until its peers have also called it, exactly like the MPI calls it
// replaces.
//
// Pattern is adapted from the teacher's core/concurrency package: Group's
// generation-counted Barrier is the same compare-and-swap-free rendezvous
// idea as EventLoop's running/doneCh handshake, and Swapm's per-peer
// channel plumbing generalizes Executor's per-worker channel wiring.
package comm

import (
	"context"
	"fmt"
	"sync"
)

// Group is the Go stand-in for an MPI communicator. Ranks are numbered
// 0..Size()-1 and never change membership for the lifetime of the Group.
type Group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	epoch   uint64
	arrived int

	// links[src][dst] carries one in-flight point-to-point message at a
	// time from src to dst; used by Swapm and the flow-controlled gathers.
	links [][]chan frame
	// hsTokens[src][dst] carries the 1-byte "ready to receive" handshake
	// token sent by dst to src before dst expects src's data.
	hsTokens [][]chan struct{}
}

type frame struct {
	tag  int
	data []byte
}

// NewGroup allocates a Group of the given size. size must be >= 1.
func NewGroup(size int) *Group {
	if size < 1 {
		size = 1
	}
	g := &Group{size: size}
	g.cond = sync.NewCond(&g.mu)
	g.links = make([][]chan frame, size)
	g.hsTokens = make([][]chan struct{}, size)
	for i := range g.links {
		g.links[i] = make([]chan frame, size)
		g.hsTokens[i] = make([]chan struct{}, size)
		for j := range g.links[i] {
			g.links[i][j] = make(chan frame, 1)
			g.hsTokens[i][j] = make(chan struct{}, 1)
		}
	}
	return g
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.size }

// Barrier blocks the calling goroutine until Size() goroutines have
// called Barrier for the current epoch. Mirrors MPI_Barrier.
func (g *Group) Barrier(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	myEpoch := g.epoch
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.epoch++
		g.cond.Broadcast()
		return nil
	}
	for g.epoch == myEpoch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.cond.Wait()
	}
	return nil
}

// send delivers data from src to dst over tag, blocking until the
// previous message on that link (if any) has been drained. Both values
// of isend put the frame on the same depth-1 link and return once it is
// accepted: non-blocking ready-sends and blocking sends are not told apart.
func (g *Group) send(ctx context.Context, src, dst, tag int, data []byte, isend bool) error {
	ch := g.links[src][dst]
	f := frame{tag: tag, data: data}
	if isend {
		select {
		case ch <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// Same put as above: the sender waits only until the depth-1 link
	// accepts the frame, not until the receiver has taken it.
	select {
	case ch <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recv blocks until the next message from src to dst arrives; the
// frame's tag is not checked.
func (g *Group) recv(ctx context.Context, src, dst int) ([]byte, error) {
	select {
	case f := <-g.links[src][dst]:
		return f.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handshakeSend notifies dst that src is ready to receive from it.
func (g *Group) handshakeSend(ctx context.Context, from, to int) error {
	select {
	case g.hsTokens[from][to] <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handshakeRecv waits for the ready-to-receive token sent by `from`.
func (g *Group) handshakeRecv(ctx context.Context, from, to int) error {
	select {
	case <-g.hsTokens[from][to]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// checkRank checks that r is a valid rank number for this group.
func (g *Group) checkRank(r int) error {
	if r < 0 || r >= g.size {
		return fmt.Errorf("comm: rank %d out of range [0,%d)", r, g.size)
	}
	return nil
}
