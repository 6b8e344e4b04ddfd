package iosystem

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"sync"
	"testing"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/backend"
	"github.com/momentics/pario/ioasync"
)

// callAll issues one ComputeClient.Call collectively from every rank in
// the compute group, the way ComputeClient.Call's doc requires ("every
// rank in Group must call Call for the same logical operation"): only
// the master rank's payload reaches the I/O-side handler, but every
// rank must arrive at the Collective's barrier or the broadcast back to
// the non-master ranks never releases. Returns the master rank's reply.
func callAll(ctx context.Context, t *testing.T, cc *ioasync.ComputeClient, size int, msg ioasync.MsgID, payload []byte) []byte {
	t.Helper()
	var wg sync.WaitGroup
	raws := make([][]byte, size)
	errs := make([]error, size)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			p := payload
			if rank != cc.ComputeMasterRank {
				p = nil
			}
			raws[rank], errs[rank] = cc.Call(ctx, rank, msg, p)
		}(rank)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("%s (rank %d): %v", msg, rank, err)
		}
	}
	return raws[cc.ComputeMasterRank]
}

// TestAsyncRoundTripCreateWriteCloseReopenRead exercises spec §8 scenario
// 4 end to end through System: 1 I/O task serves 3 compute tasks that
// create a file, define a scalar int variable, write my_comp_idx = 0,
// close, reopen, and read 0 back — entirely over ComputeClient.Call/
// IoServer.Run, with no direct pfile/backend access on the compute side.
// backend.Memory's Open is a plain alias for Create (no state survives a
// close), so this exercises backend.SerialFile instead, the driver that
// actually persists a file's variables across a close/reopen cycle.
func TestAsyncRoundTripCreateWriteCloseReopenRead(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.TotalRanks = 4 // 3 compute ranks + 1 I/O task
	cfg.NumIOTasks = 1
	cfg.Async = true

	sys, err := New(ctx, t.Name(), cfg, backend.NewSerialFile())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "async-roundtrip.nc")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sys.ServeAsync(ctx, sys.IORanks[0]); err != nil {
			t.Errorf("ServeAsync: %v", err)
		}
	}()

	const computeMaster = 0
	cc := sys.ComputeClient
	computeSize := len(sys.ComputeRanks())

	createPayload, err := gobEncode(createFileArgs{Path: path, Mode: 0})
	if err != nil {
		t.Fatalf("encode create args: %v", err)
	}
	var created fileHandleReply
	if err := gobDecode(callAll(ctx, t, cc, computeSize, ioasync.MsgCreateFile, createPayload), &created); err != nil {
		t.Fatalf("decode create reply: %v", err)
	}

	defVarPayload, err := gobEncode(defVarArgs{Handle: created.Handle, Name: "my_comp_idx", ElemType: api.ElemInt32})
	if err != nil {
		t.Fatalf("encode defvar args: %v", err)
	}
	var defined defVarReply
	if err := gobDecode(callAll(ctx, t, cc, computeSize, ioasync.MsgDefVar, defVarPayload), &defined); err != nil {
		t.Fatalf("decode defvar reply: %v", err)
	}

	wantData := make([]byte, 4)
	binary.LittleEndian.PutUint32(wantData, 0)
	putPayload, err := gobEncode(putVarsArgs{Handle: created.Handle, VarID: defined.VarID, Data: wantData})
	if err != nil {
		t.Fatalf("encode putvars args: %v", err)
	}
	callAll(ctx, t, cc, computeSize, ioasync.MsgPutVars, putPayload)

	closePayload, err := gobEncode(closeFileArgs{Handle: created.Handle})
	if err != nil {
		t.Fatalf("encode close args: %v", err)
	}
	callAll(ctx, t, cc, computeSize, ioasync.MsgCloseFile, closePayload)

	openPayload, err := gobEncode(openFileArgs{Path: path, Mode: 0})
	if err != nil {
		t.Fatalf("encode open args: %v", err)
	}
	var reopened fileHandleReply
	if err := gobDecode(callAll(ctx, t, cc, computeSize, ioasync.MsgOpenFile, openPayload), &reopened); err != nil {
		t.Fatalf("decode open reply: %v", err)
	}

	getPayload, err := gobEncode(getVarsArgs{Handle: reopened.Handle, VarID: defined.VarID, Len: 4})
	if err != nil {
		t.Fatalf("encode getvars args: %v", err)
	}
	var got getVarsReply
	if err := gobDecode(callAll(ctx, t, cc, computeSize, ioasync.MsgGetVars, getPayload), &got); err != nil {
		t.Fatalf("decode getvars reply: %v", err)
	}
	if binary.LittleEndian.Uint32(got.Data) != 0 {
		t.Fatalf("my_comp_idx = %d, want 0", binary.LittleEndian.Uint32(got.Data))
	}

	if err := cc.Exit(ctx, computeMaster); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	wg.Wait()
}

// TestServeAsyncNoOpWhenSynchronous confirms a synchronous System's
// ServeAsync never blocks — it has no IoServer to run.
func TestServeAsyncNoOpWhenSynchronous(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.TotalRanks = 1
	cfg.NumIOTasks = 1

	sys, err := New(ctx, t.Name(), cfg, backend.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sys.ServeAsync(ctx, 0); err != nil {
		t.Fatalf("ServeAsync: %v", err)
	}
}
