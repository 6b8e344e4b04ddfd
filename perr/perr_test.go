package perr

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/pario/comm"
)

func TestReturnDispositionIsAsymmetric(t *testing.T) {
	p := Policy{Disposition: DispositionReturn}
	err := New(CodeInvalidArgument, "test.Op", nil)
	got := p.Reconcile(context.Background(), nil, 0, err)
	if got != err {
		t.Fatalf("expected pass-through, got %v", got)
	}
	if got := p.Reconcile(context.Background(), nil, 0, nil); got != nil {
		t.Fatalf("expected nil pass-through, got %v", got)
	}
}

func TestBroadcastDispositionUnifiesFailure(t *testing.T) {
	n := 4
	g := comm.NewGroup(n)
	ctx := context.Background()
	p := Policy{Disposition: DispositionBroadcast}

	results := make([]error, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			var localErr error
			if r == 2 {
				localErr = New(CodeBadHandle, "pfile.Open", nil)
			}
			results[r] = p.Reconcile(ctx, g, r, localErr)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	for r, err := range results {
		if err == nil {
			t.Fatalf("rank %d: expected every rank to observe the failure, got nil", r)
		}
	}
}

func TestBroadcastDispositionUnanimousSuccess(t *testing.T) {
	n := 3
	g := comm.NewGroup(n)
	ctx := context.Background()
	p := Policy{Disposition: DispositionBroadcast}

	results := make([]error, n)
	var eg errgroup.Group
	for r := 0; r < n; r++ {
		r := r
		eg.Go(func() error {
			results[r] = p.Reconcile(ctx, g, r, nil)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	for r, err := range results {
		if err != nil {
			t.Fatalf("rank %d: expected nil, got %v", r, err)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := ErrConvergenceFailure.Err
	e := New(CodeConvergenceFailure, "iomap.CalcStartAndCount", cause)
	if e.Unwrap() != cause {
		t.Fatal("Unwrap did not return the wrapped cause")
	}
}
