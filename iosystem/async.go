package iosystem

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/ioasync"
	"github.com/momentics/pario/perr"
	"github.com/momentics/pario/pfile"
	"github.com/momentics/pario/plog"
	"github.com/momentics/pario/registry"
)

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("iosystem: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("iosystem: decode: %w", err)
	}
	return nil
}

type createFileArgs struct {
	Path string
	Mode int
}

type openFileArgs struct {
	Path string
	Mode int
}

type fileHandleReply struct {
	Handle int
}

type closeFileArgs struct {
	Handle int
}

type syncArgs struct {
	Handle int
}

type defVarArgs struct {
	Handle   int
	Name     string
	ElemType api.ElementType
	DimIDs   []int
}

type defVarReply struct {
	VarID int
}

type putVarsArgs struct {
	Handle       int
	VarID        int
	Start, Count []int
	Data         []byte
}

type getVarsArgs struct {
	Handle       int
	VarID        int
	Start, Count []int
	Len          int
}

type getVarsReply struct {
	Data []byte
}

// wireAsync builds the compute/IO intercommunicator split and the
// IoServer/ComputeClient pair spec §4.9 describes, and registers I/O-side
// handlers for the file/variable operations spec §8 scenario 4 exercises
// (create, open, close, sync, def-var, put-vars, get-vars). Handlers are
// thin gob-decode-then-call-pfile shims: the I/O task actually performing
// the operation is the same pfile/backend code path a synchronous caller
// would use directly.
func (s *System) wireAsync() error {
	computeRanks := s.ComputeRanks()
	if len(computeRanks) == 0 {
		return perr.New(perr.CodeInvalidArgument, "iosystem.New",
			fmt.Errorf("async mode requires at least one compute rank"))
	}

	computeGroup := comm.NewGroup(len(computeRanks))
	ioGroup := comm.NewGroup(len(s.IORanks))
	ig := comm.NewInterGroup(computeGroup, ioGroup)

	srv := ioasync.NewIoServer(ig)
	srv.Register(ioasync.MsgCreateFile, s.handleCreateFile)
	srv.Register(ioasync.MsgOpenFile, s.handleOpenFile)
	srv.Register(ioasync.MsgCloseFile, s.handleCloseFile)
	srv.Register(ioasync.MsgSync, s.handleSyncFile)
	srv.Register(ioasync.MsgDefVar, s.handleDefVar)
	srv.Register(ioasync.MsgPutVars, s.handlePutVars)
	srv.Register(ioasync.MsgGetVars, s.handleGetVars)

	s.IOServer = srv
	s.ComputeClient = &ioasync.ComputeClient{
		Group:             computeGroup,
		IG:                ig,
		ComputeMasterRank: 0,
		IOMasterRank:      0,
	}
	return nil
}

// ServeAsync runs the calling I/O rank's async message loop: spec §4.9's
// "the I/O tasks never return from init; they enter a message loop."
// Fan this out from each I/O rank's own goroutine, the same per-rank call
// shape every other System/decomp operation in this module uses — it
// blocks until the compute side calls ComputeClient.Exit or ctx is
// cancelled. IoServer serves a single compute/IO master-rank channel, so
// only s.IORanks[0] actually enters the loop; the remaining I/O ranks
// (when NumIOTasks > 1) and every compute rank return immediately, as
// does a synchronous (!Config.Async) System.
func (s *System) ServeAsync(ctx context.Context, rank int) error {
	if !s.Config.Async || !s.IsIORank(rank) || rank != s.IORanks[0] {
		return nil
	}
	plog.Rank(rank).Debug("iosystem: entering async I/O-task message loop")
	return s.IOServer.Run(ctx)
}

// StopAsync cancels a running ServeAsync loop and waits for it to
// return. Safe to call even when ServeAsync was never entered or
// Config.Async is unset.
func (s *System) StopAsync() {
	if s.IOServer != nil {
		s.IOServer.Stop()
	}
}

func (s *System) handleCreateFile(ctx context.Context, payload []byte) ([]byte, error) {
	var args createFileArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, err := pfile.Create(ctx, s, s.IORanks[0], args.Path, args.Mode)
	if err != nil {
		return nil, err
	}
	return gobEncode(fileHandleReply{Handle: int(f.Handle)})
}

func (s *System) handleOpenFile(ctx context.Context, payload []byte) ([]byte, error) {
	var args openFileArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, err := pfile.Open(ctx, s, s.IORanks[0], args.Path, args.Mode)
	if err != nil {
		return nil, err
	}
	return gobEncode(fileHandleReply{Handle: int(f.Handle)})
}

func (s *System) handleCloseFile(ctx context.Context, payload []byte) ([]byte, error) {
	var args closeFileArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, ok := pfile.Lookup(registry.Handle(args.Handle))
	if !ok {
		return nil, fmt.Errorf("iosystem: close-file: unknown handle %d", args.Handle)
	}
	return nil, f.Close(ctx)
}

func (s *System) handleSyncFile(ctx context.Context, payload []byte) ([]byte, error) {
	var args syncArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, ok := pfile.Lookup(registry.Handle(args.Handle))
	if !ok {
		return nil, fmt.Errorf("iosystem: sync: unknown handle %d", args.Handle)
	}
	return nil, f.Sync(ctx)
}

func (s *System) handleDefVar(ctx context.Context, payload []byte) ([]byte, error) {
	var args defVarArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, ok := pfile.Lookup(registry.Handle(args.Handle))
	if !ok {
		return nil, fmt.Errorf("iosystem: def-var: unknown handle %d", args.Handle)
	}
	vd, err := f.DefVar(ctx, args.Name, args.ElemType, args.DimIDs)
	if err != nil {
		return nil, err
	}
	return gobEncode(defVarReply{VarID: vd.ID})
}

func (s *System) handlePutVars(ctx context.Context, payload []byte) ([]byte, error) {
	var args putVarsArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, ok := pfile.Lookup(registry.Handle(args.Handle))
	if !ok {
		return nil, fmt.Errorf("iosystem: put-vars: unknown handle %d", args.Handle)
	}
	return nil, f.System.Driver.PutVars(ctx, int(f.Handle), args.VarID, args.Start, args.Count, args.Data)
}

func (s *System) handleGetVars(ctx context.Context, payload []byte) ([]byte, error) {
	var args getVarsArgs
	if err := gobDecode(payload, &args); err != nil {
		return nil, err
	}
	f, ok := pfile.Lookup(registry.Handle(args.Handle))
	if !ok {
		return nil, fmt.Errorf("iosystem: get-vars: unknown handle %d", args.Handle)
	}
	data := make([]byte, args.Len)
	if err := f.System.Driver.GetVars(ctx, int(f.Handle), args.VarID, args.Start, args.Count, data); err != nil {
		return nil, err
	}
	return gobEncode(getVarsReply{Data: data})
}
