// Package iosystem implements the top-level IOSystem handle (SPEC_FULL.md
// §4.14, spec §3/§4.9): the union/compute/io group split, default
// rearranger and tuning knobs, and error-disposition policy every
// `decomp`/`darray`/`iobuf` call is ultimately scoped under.
package iosystem

import (
	"context"
	"fmt"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/backend"
	"github.com/momentics/pario/comm"
	"github.com/momentics/pario/ioasync"
	"github.com/momentics/pario/perr"
	"github.com/momentics/pario/plog"
	"github.com/momentics/pario/registry"
)

// Config mirrors the teacher's facade.Config/DefaultConfig one-call-setup
// style, generalized from transport/pooling knobs to PIO's rearranger
// and I/O-task tuning knobs.
type Config struct {
	TotalRanks        int
	NumIOTasks        int // trailing TotalRanks-NumIOTasks..TotalRanks-1 ranks are I/O tasks
	Async             bool
	DefaultRearranger api.Rearranger
	ErrorPolicy       perr.Policy

	// Swapm/FCGather tuning. These are stored on the System only: darray's
	// rearrange calls build their comm.SwapmPlan without reading them.
	MaxReq    int
	Handshake bool
	Isend     bool
	FlowCntl  int
}

// DefaultConfig returns a baseline configuration: one I/O task, SUBSET
// rearranger, broadcast error disposition, no flow control throttling —
// the same "sane defaults, override what you need" contract as the
// teacher's facade.DefaultConfig.
func DefaultConfig() Config {
	return Config{
		TotalRanks:        1,
		NumIOTasks:        1,
		DefaultRearranger: api.RearrangerSubset,
		ErrorPolicy:       perr.Policy{Disposition: perr.DispositionBroadcast},
		MaxReq:            2,
		FlowCntl:          0,
	}
}

// System is the live handle spec §3/§4.9 describes: the union group
// split into compute and I/O task subsets, bound to a back-end driver,
// with a single error-disposition policy governing every collective
// reconciliation performed through it.
type System struct {
	Handle registry.Handle
	Config Config

	Union   *comm.Group
	IORanks []int // subset of [0, Union.Size()) identifying I/O task ranks

	Driver backend.Driver

	// IOServer and ComputeClient are non-nil when Config.Async is set,
	// built by wireAsync during New. See ServeAsync/StopAsync.
	IOServer      *ioasync.IoServer
	ComputeClient *ioasync.ComputeClient
}

var systems = registry.NewIOSystemTable[*System]()
var dedup = registry.NewDedup[*System]()

// IsIORank reports whether rank is one of this system's I/O tasks.
func (s *System) IsIORank(rank int) bool {
	for _, r := range s.IORanks {
		if r == rank {
			return true
		}
	}
	return false
}

// ComputeRanks returns every rank that is not an I/O task.
func (s *System) ComputeRanks() []int {
	io := make(map[int]bool, len(s.IORanks))
	for _, r := range s.IORanks {
		io[r] = true
	}
	out := make([]int, 0, s.Union.Size()-len(s.IORanks))
	for r := 0; r < s.Union.Size(); r++ {
		if !io[r] {
			out = append(out, r)
		}
	}
	return out
}

// New builds a System per cfg: a Union group of cfg.TotalRanks ranks,
// with the trailing cfg.NumIOTasks ranks designated as I/O tasks
// (mirroring spec §4.9's "I/O tasks never return to the caller's main
// flow the way compute tasks do" split). When cfg.Async is set, New also
// wires the IoServer/ComputeClient pair (see wireAsync); callers then
// fan ServeAsync out one goroutine per I/O rank to actually enter the
// blocking message loop. Concurrent New calls sharing the same dedupKey
// are coalesced via registry.Dedup so two ranks racing to build "the
// same" IOSystem in one process observe a single constructed instance.
func New(ctx context.Context, dedupKey string, cfg Config, drv backend.Driver) (*System, error) {
	if cfg.TotalRanks < 1 {
		return nil, perr.New(perr.CodeInvalidArgument, "iosystem.New", fmt.Errorf("TotalRanks must be >= 1"))
	}
	if cfg.NumIOTasks < 1 || cfg.NumIOTasks > cfg.TotalRanks {
		return nil, perr.New(perr.CodeInvalidArgument, "iosystem.New",
			fmt.Errorf("NumIOTasks (%d) must be in [1, TotalRanks(%d)]", cfg.NumIOTasks, cfg.TotalRanks))
	}

	return dedup.GetOrCreate(dedupKey, func() (*System, error) {
		union := comm.NewGroup(cfg.TotalRanks)
		ioRanks := make([]int, cfg.NumIOTasks)
		for i := 0; i < cfg.NumIOTasks; i++ {
			ioRanks[i] = cfg.TotalRanks - cfg.NumIOTasks + i
		}
		sys := &System{Config: cfg, Union: union, IORanks: ioRanks, Driver: drv}
		sys.Handle = systems.Add(sys)
		if cfg.Async {
			if err := sys.wireAsync(); err != nil {
				systems.Delete(sys.Handle)
				return nil, err
			}
		}
		plog.System(int(sys.Handle)).WithField("async", cfg.Async).Debug("iosystem: constructed")
		return sys, nil
	})
}

// Lookup resolves a previously-registered System by handle.
func Lookup(h registry.Handle) (*System, bool) {
	return systems.Get(h)
}

// Finalize releases s's registry entry. It does not close the back-end
// driver — callers that opened files through s are responsible for
// closing them first via pfile.File.Close.
func (s *System) Finalize(ctx context.Context) error {
	s.StopAsync()
	systems.Delete(s.Handle)
	plog.System(int(s.Handle)).Debug("iosystem: finalized")
	return nil
}
