package comm

import "context"

// Collective[T] is a reusable exchange slot shared by every rank
// participating in one collective call: each rank writes its own
// contribution into its slot (safe — disjoint indices, no lock needed),
// then the group barriers, then every rank may read any slot. This
// models the simple (non-tree) form of MPI_Allgather/MPI_Bcast/
// MPI_Allreduce when every rank lives in one address space.
type Collective[T any] struct {
	g     *Group
	slots []T
}

// NewCollective allocates a Collective bound to g. The same instance
// must be shared (by pointer) across every rank's goroutine for one
// logical collective call.
func NewCollective[T any](g *Group) *Collective[T] {
	return &Collective[T]{g: g, slots: make([]T, g.Size())}
}

// Set stores this rank's contribution. Must be called before Wait.
func (c *Collective[T]) Set(rank int, v T) { c.slots[rank] = v }

// Wait blocks until every rank has called Set and Wait.
func (c *Collective[T]) Wait(ctx context.Context) error {
	return c.g.Barrier(ctx)
}

// Get reads the contribution of the given rank. Only valid after Wait
// has returned successfully.
func (c *Collective[T]) Get(rank int) T { return c.slots[rank] }

// All returns every rank's contribution, indexed by rank. Only valid
// after Wait has returned successfully.
func (c *Collective[T]) All() []T { return c.slots }

// Bcast broadcasts the root's value to every rank. Every rank (root
// included) must call Bcast with the same *Collective[T] for the value
// to be delivered; non-root ranks may pass the zero value.
func Bcast[T any](ctx context.Context, c *Collective[T], rank, root int, value T) (T, error) {
	if rank == root {
		c.Set(rank, value)
	}
	if err := c.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return c.Get(root), nil
}

// AllreduceMax performs an all-reduce with the integer max operator,
// the one reduction operator the source library's collective-buffer
// discipline actually uses (PIOc_write_darray's needsflush decision).
func AllreduceMax(ctx context.Context, g *Group, rank, value int) (int, error) {
	c := NewCollective[int](g)
	c.Set(rank, value)
	if err := c.Wait(ctx); err != nil {
		return 0, err
	}
	max := c.Get(0)
	for _, v := range c.All() {
		if v > max {
			max = v
		}
	}
	return max, nil
}

// AllreduceMaxShared is AllreduceMax against a Collective the caller
// already owns, for call sites that fan out many collectives and want
// to avoid reallocating a Collective per call.
func AllreduceMaxShared(ctx context.Context, c *Collective[int], rank, value int) (int, error) {
	c.Set(rank, value)
	if err := c.Wait(ctx); err != nil {
		return 0, err
	}
	max := c.Get(0)
	for _, v := range c.All() {
		if v > max {
			max = v
		}
	}
	return max, nil
}

// AlltoallCounts exchanges one int per peer (scount -> rcount), the
// "further exchange communicate[s] which source ranks contribute"
// step used by the BOX rearranger's plan construction.
func AlltoallCounts(ctx context.Context, g *Group, rank int, sendCounts []int) ([]int, error) {
	c := NewCollective[[]int](g)
	c.Set(rank, sendCounts)
	if err := c.Wait(ctx); err != nil {
		return nil, err
	}
	recvCounts := make([]int, g.Size())
	for peer := 0; peer < g.Size(); peer++ {
		recvCounts[peer] = c.Get(peer)[rank]
	}
	return recvCounts, nil
}
