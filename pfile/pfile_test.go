package pfile

import (
	"context"
	"testing"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/backend"
	"github.com/momentics/pario/iosystem"
)

func newTestSystem(t *testing.T) *iosystem.System {
	t.Helper()
	cfg := iosystem.DefaultConfig()
	cfg.TotalRanks = 1
	cfg.NumIOTasks = 1
	sys, err := iosystem.New(context.Background(), t.Name(), cfg, backend.NewMemory())
	if err != nil {
		t.Fatalf("iosystem.New: %v", err)
	}
	return sys
}

func TestCreateDefineEndDefInquire(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem(t)

	f, err := Create(ctx, sys, 0, "mem://file1", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dim, err := f.DefDim(ctx, "x", 4)
	if err != nil {
		t.Fatalf("DefDim: %v", err)
	}
	vd, err := f.DefVar(ctx, "temp", api.ElemFloat64, []int{dim})
	if err != nil {
		t.Fatalf("DefVar: %v", err)
	}
	if err := f.EndDef(ctx); err != nil {
		t.Fatalf("EndDef: %v", err)
	}
	if err := f.PutAtt(ctx, vd.ID, "units", "K"); err != nil {
		t.Fatalf("PutAtt: %v", err)
	}
	got, err := f.GetAtt(ctx, vd.ID, "units")
	if err != nil || got != "K" {
		t.Fatalf("GetAtt=%v,%v want K,nil", got, err)
	}
	info, err := f.Inquire(ctx)
	if err != nil {
		t.Fatalf("Inquire: %v", err)
	}
	if info.NumDims != 1 || info.NumVars != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := Lookup(f.Handle); ok {
		t.Fatal("expected file gone from registry after Close")
	}
}

func TestBindDecompAndWriteBufferRoundTrip(t *testing.T) {
	ctx := context.Background()
	sys := newTestSystem(t)
	f, err := Create(ctx, sys, 0, "mem://file2", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	vd, err := f.DefVar(ctx, "v", api.ElemInt32, nil)
	if err != nil {
		t.Fatalf("DefVar: %v", err)
	}
	f.BindDecomp(vd.ID, 512, api.RearrangerBox, 4, api.ElemInt32)

	buf, ok := f.WriteBuffer(512)
	if !ok {
		t.Fatal("expected a write buffer bound to iodesc 512")
	}
	data := make([]byte, 4*4)
	if err := buf.Append(vd.ID, -1, nil, data); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Close should flush the bound buffer through the backend driver.
	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.ValidVars() != 0 {
		t.Fatalf("expected buffer flushed on Close, ValidVars=%d", buf.ValidVars())
	}
}
