package iosystem

import (
	"context"
	"testing"

	"github.com/momentics/pario/backend"
)

func TestNewSplitsTrailingRanksAsIOTasks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalRanks = 6
	cfg.NumIOTasks = 2

	sys, err := New(context.Background(), "test-split", cfg, backend.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sys.Union.Size() != 6 {
		t.Fatalf("union size=%d want 6", sys.Union.Size())
	}
	wantIO := []int{4, 5}
	if len(sys.IORanks) != len(wantIO) || sys.IORanks[0] != wantIO[0] || sys.IORanks[1] != wantIO[1] {
		t.Fatalf("IORanks=%v want %v", sys.IORanks, wantIO)
	}
	for _, r := range wantIO {
		if !sys.IsIORank(r) {
			t.Fatalf("rank %d should be an I/O rank", r)
		}
	}
	compute := sys.ComputeRanks()
	if len(compute) != 4 {
		t.Fatalf("ComputeRanks=%v want 4 entries", compute)
	}
}

func TestNewDedupesConcurrentCallsWithSameKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalRanks = 2
	cfg.NumIOTasks = 1

	s1, err := New(context.Background(), "shared", cfg, backend.NewMemory())
	if err != nil {
		t.Fatalf("New 1: %v", err)
	}
	s2, err := New(context.Background(), "shared", cfg, backend.NewMemory())
	if err != nil {
		t.Fatalf("New 2: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected the same System instance for the same dedup key")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalRanks = 0
	if _, err := New(context.Background(), "bad", cfg, backend.NewMemory()); err == nil {
		t.Fatal("expected error for TotalRanks=0")
	}

	cfg2 := DefaultConfig()
	cfg2.NumIOTasks = 10
	cfg2.TotalRanks = 2
	if _, err := New(context.Background(), "bad2", cfg2, backend.NewMemory()); err == nil {
		t.Fatal("expected error for NumIOTasks > TotalRanks")
	}
}

func TestFinalizeRemovesFromRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TotalRanks = 1
	cfg.NumIOTasks = 1
	sys, err := New(context.Background(), "finalize-me", cfg, backend.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := Lookup(sys.Handle); !ok {
		t.Fatal("expected to find system before Finalize")
	}
	if err := sys.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, ok := Lookup(sys.Handle); ok {
		t.Fatal("expected system gone after Finalize")
	}
}
