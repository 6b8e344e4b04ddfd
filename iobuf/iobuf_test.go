package iobuf

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
)

type fakeFlusher struct {
	calls     int
	lastVIDs  []int
	lastLen   int
	syncCalls int
}

func (f *fakeFlusher) PutVarsMulti(ctx context.Context, fileHandle int, vids []int, frames []int,
	elemType api.ElementType, arrayLen int, data []byte) error {
	f.calls++
	f.lastVIDs = append([]int(nil), vids...)
	f.lastLen = len(data)
	return nil
}

func (f *fakeFlusher) Sync(ctx context.Context, fileHandle int) error {
	f.syncCalls++
	return nil
}

func TestAppendAndFlush(t *testing.T) {
	w := NewWriteMultiBuffer(1, 1, api.ElemFloat64, 4, api.RearrangerBox)
	data1 := make([]byte, 4*8)
	data2 := make([]byte, 4*8)

	if err := w.Append(10, -1, nil, data1); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := w.Append(11, -1, nil, data2); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if w.ValidVars() != 2 {
		t.Fatalf("ValidVars=%d want 2", w.ValidVars())
	}

	fl := &fakeFlusher{}
	if err := w.Flush(context.Background(), fl, FlushToIO); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fl.calls != 1 {
		t.Fatalf("expected exactly one PutVarsMulti call, got %d", fl.calls)
	}
	if len(fl.lastVIDs) != 2 || fl.lastVIDs[0] != 10 || fl.lastVIDs[1] != 11 {
		t.Fatalf("unexpected vids flushed: %v", fl.lastVIDs)
	}
	if fl.lastLen != 2*4*8 {
		t.Fatalf("flushed data length=%d want %d", fl.lastLen, 2*4*8)
	}
	if w.ValidVars() != 0 {
		t.Fatalf("expected buffer reset after flush, ValidVars=%d", w.ValidVars())
	}
	if fl.syncCalls != 0 {
		t.Fatalf("FlushToIO should not call Sync, got %d calls", fl.syncCalls)
	}
}

func TestFlushToDiskCallsSync(t *testing.T) {
	w := NewWriteMultiBuffer(1, 1, api.ElemInt32, 2, api.RearrangerSubset)
	_ = w.Append(5, 0, nil, make([]byte, 2*4))

	fl := &fakeFlusher{}
	if err := w.Flush(context.Background(), fl, FlushToDisk); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if fl.syncCalls != 1 {
		t.Fatalf("expected Sync to be called once, got %d", fl.syncCalls)
	}
}

func TestAppendRejectsWrongLength(t *testing.T) {
	w := NewWriteMultiBuffer(1, 1, api.ElemFloat32, 3, api.RearrangerBox)
	if err := w.Append(1, -1, nil, make([]byte, 7)); err == nil {
		t.Fatal("expected error for mismatched data length")
	}
}

func TestNeedsFlushUnanimousAcrossRanks(t *testing.T) {
	n := 3
	g := comm.NewGroup(n)
	ctx := context.Background()

	// Every rank has its own WriteMultiBuffer instance (decomposition
	// state is per-rank), but only rank 1 is actually low on pool space.
	buffers := make([]*WriteMultiBuffer, n)
	for i := range buffers {
		buffers[i] = NewWriteMultiBuffer(1, 1, api.ElemFloat64, 1000, api.RearrangerBox)
		_ = buffers[i].Append(1, -1, nil, make([]byte, 1000*8))
	}

	maxFree := []int64{1 << 30, 10, 1 << 30}
	results := make([]bool, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			flush, err := buffers[r].NeedsFlush(ctx, g, r, maxFree[r])
			results[r] = flush
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("NeedsFlush failed: %v", err)
	}
	for r, flush := range results {
		if !flush {
			t.Fatalf("rank %d: expected unanimous flush=true because rank 1 is low on pool space", r)
		}
	}
}
