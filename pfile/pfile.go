// Package pfile implements File and VarDesc (SPEC_FULL.md §4.14): the
// "mechanically thin" metadata pass-through surface spec §1 calls
// out-of-scope-for-depth but still ambient — define dim/var, attributes,
// inquire — dispatched through backend.Driver, plus the per-file
// iobuf.WriteMultiBuffer chain every darray write feeds.
package pfile

import (
	"context"
	"fmt"
	"sync"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/backend"
	"github.com/momentics/pario/iobuf"
	"github.com/momentics/pario/iosystem"
	"github.com/momentics/pario/plog"
	"github.com/momentics/pario/registry"
)

// VarDesc is the metadata record for one defined variable.
type VarDesc struct {
	ID       int
	Name     string
	ElemType api.ElementType
	DimIDs   []int
	IODescID int // registry.Handle of the decomp.Plan this var writes through, 0 if scalar
}

// File is the open-file handle spec's external-interfaces section
// names: a driver-backed container of variables plus the write-buffer
// chain every decomposition-bound variable aggregates through.
type File struct {
	Handle registry.Handle
	System *iosystem.System
	Path   string

	mu       sync.Mutex
	vars     map[int]*VarDesc
	buffers  map[int]*iobuf.WriteMultiBuffer // keyed by IODescID
	defining bool
}

var files = registry.NewFileTable[*File]()

// Create opens path for writing under sys, registering a new File.
func Create(ctx context.Context, sys *iosystem.System, rank int, path string, mode int) (*File, error) {
	f := &File{System: sys, Path: path, vars: make(map[int]*VarDesc), buffers: make(map[int]*iobuf.WriteMultiBuffer), defining: true}
	f.Handle = files.Add(f)
	if err := sys.Driver.Create(ctx, int(f.Handle), path, mode); err != nil {
		files.Delete(f.Handle)
		plog.Rank(rank).WithField("path", path).WithError(err).Warn("pfile: create failed")
		return nil, fmt.Errorf("pfile.Create: %w", err)
	}
	plog.File(int(f.Handle)).WithField("rank", rank).WithField("path", path).Debug("pfile: created")
	return f, nil
}

// Open opens an existing path for read/append under sys.
func Open(ctx context.Context, sys *iosystem.System, rank int, path string, mode int) (*File, error) {
	f := &File{System: sys, Path: path, vars: make(map[int]*VarDesc), buffers: make(map[int]*iobuf.WriteMultiBuffer)}
	f.Handle = files.Add(f)
	if err := sys.Driver.Open(ctx, int(f.Handle), path, mode); err != nil {
		files.Delete(f.Handle)
		plog.Rank(rank).WithField("path", path).WithError(err).Warn("pfile: open failed")
		return nil, fmt.Errorf("pfile.Open: %w", err)
	}
	plog.File(int(f.Handle)).WithField("rank", rank).WithField("path", path).Debug("pfile: opened")
	return f, nil
}

// Lookup resolves a previously-registered File by handle.
func Lookup(h registry.Handle) (*File, bool) {
	return files.Get(h)
}

// Close flushes every pending write-buffer, syncs, and releases f's
// registry entry.
func (f *File) Close(ctx context.Context) error {
	f.mu.Lock()
	buffers := make([]*iobuf.WriteMultiBuffer, 0, len(f.buffers))
	for _, b := range f.buffers {
		buffers = append(buffers, b)
	}
	f.mu.Unlock()

	for _, b := range buffers {
		if b.ValidVars() > 0 {
			if err := b.Flush(ctx, f.System.Driver, iobuf.FlushToDisk); err != nil {
				return fmt.Errorf("pfile.Close: flush: %w", err)
			}
		}
	}
	if err := f.System.Driver.Close(ctx, int(f.Handle)); err != nil {
		return fmt.Errorf("pfile.Close: %w", err)
	}
	files.Delete(f.Handle)
	plog.File(int(f.Handle)).Debug("pfile: closed")
	return nil
}

// Sync flushes every pending write-buffer to disk without closing f.
func (f *File) Sync(ctx context.Context) error {
	f.mu.Lock()
	buffers := make([]*iobuf.WriteMultiBuffer, 0, len(f.buffers))
	for _, b := range f.buffers {
		buffers = append(buffers, b)
	}
	f.mu.Unlock()

	for _, b := range buffers {
		if b.ValidVars() > 0 {
			if err := b.Flush(ctx, f.System.Driver, iobuf.FlushToDisk); err != nil {
				return err
			}
		}
	}
	plog.File(int(f.Handle)).Debug("pfile: synced")
	return f.System.Driver.Sync(ctx, int(f.Handle))
}

// DefDim defines a dimension, pass-through to the backend driver.
func (f *File) DefDim(ctx context.Context, name string, length int64) (int, error) {
	return f.System.Driver.DefDim(ctx, int(f.Handle), name, length)
}

// DefVar defines a variable, recording its VarDesc locally for later
// Append/EndDef/Inquire calls.
func (f *File) DefVar(ctx context.Context, name string, elemType api.ElementType, dimIDs []int) (*VarDesc, error) {
	id, err := f.System.Driver.DefVar(ctx, int(f.Handle), name, elemType, dimIDs)
	if err != nil {
		return nil, err
	}
	vd := &VarDesc{ID: id, Name: name, ElemType: elemType, DimIDs: dimIDs}
	f.mu.Lock()
	f.vars[id] = vd
	f.mu.Unlock()
	plog.File(int(f.Handle)).WithField("var", name).Debug("pfile: defined variable")
	return vd, nil
}

// BindDecomp associates a variable with the decomposition iodescID so
// future writes to it route through that decomposition's write buffer.
func (f *File) BindDecomp(varID int, iodescID int, rearr api.Rearranger, arrayLen int, elemType api.ElementType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if vd, ok := f.vars[varID]; ok {
		vd.IODescID = iodescID
	}
	if _, ok := f.buffers[iodescID]; !ok {
		f.buffers[iodescID] = iobuf.NewWriteMultiBuffer(int(f.Handle), iodescID, elemType, arrayLen, rearr)
	}
}

// WriteBuffer returns the write-aggregation buffer for iodescID,
// creating one is the caller's responsibility via BindDecomp first.
func (f *File) WriteBuffer(iodescID int) (*iobuf.WriteMultiBuffer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.buffers[iodescID]
	return b, ok
}

// EndDef ends the file's define phase.
func (f *File) EndDef(ctx context.Context) error {
	f.mu.Lock()
	f.defining = false
	f.mu.Unlock()
	return f.System.Driver.EndDef(ctx, int(f.Handle))
}

// PutAtt sets an attribute on varID.
func (f *File) PutAtt(ctx context.Context, varID int, name string, value any) error {
	return f.System.Driver.PutAtt(ctx, int(f.Handle), varID, name, value)
}

// GetAtt reads an attribute from varID.
func (f *File) GetAtt(ctx context.Context, varID int, name string) (any, error) {
	return f.System.Driver.GetAtt(ctx, int(f.Handle), varID, name)
}

// Inquire reports dimension/variable/attribute counts.
func (f *File) Inquire(ctx context.Context) (backend.Info, error) {
	return f.System.Driver.Inquire(ctx, int(f.Handle))
}
