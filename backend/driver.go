// Package backend implements the back-end driver capability interface
// (SPEC_FULL.md §4.13) that stands in for the closed set of netCDF/HDF5
// I/O types a File binds to, plus the concrete drivers that make the
// rest of the library runnable without a real netCDF/pnetcdf library in
// the retrieved ecosystem.
package backend

import (
	"context"

	"github.com/momentics/pario/api"
)

// Info is the minimal post-open metadata a driver reports back,
// mirroring nc_inq's dimension/variable counts.
type Info struct {
	NumDims int
	NumVars int
	NumAtts int
}

// Driver is the capability surface every back-end must implement. A
// single Driver instance serves every open file (each identified by the
// fileHandle registry.Handle pfile/iosystem assigned it), rather than
// one instance per file, so that iobuf.WriteMultiBuffer's Flusher
// interface — already keyed by fileHandle — can be satisfied directly
// with no per-file adapter. iosystem/pfile dispatch exclusively through
// this interface — never a type switch on a concrete driver — per spec
// §9's polymorphism-over-I/O-type guidance.
type Driver interface {
	Create(ctx context.Context, fileHandle int, path string, mode int) error
	Open(ctx context.Context, fileHandle int, path string, mode int) error
	Close(ctx context.Context, fileHandle int) error
	Sync(ctx context.Context, fileHandle int) error

	DefDim(ctx context.Context, fileHandle int, name string, length int64) (int, error)
	DefVar(ctx context.Context, fileHandle int, name string, elemType api.ElementType, dimIDs []int) (int, error)
	EndDef(ctx context.Context, fileHandle int) error

	PutAtt(ctx context.Context, fileHandle, varID int, name string, value any) error
	GetAtt(ctx context.Context, fileHandle, varID int, name string) (any, error)

	PutVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error
	GetVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error

	// PutVarsMulti/Sync, taken together, are exactly iobuf.Flusher.
	PutVarsMulti(ctx context.Context, fileHandle int, vids []int, frames []int,
		elemType api.ElementType, arrayLen int, data []byte) error

	Inquire(ctx context.Context, fileHandle int) (Info, error)
	Delete(ctx context.Context, path string) error

	BufferAttach(size int) error
	BufferDetach() error
}

// Type identifies which concrete Driver a Create/Open request wants,
// carrying forward api.IOType's closed set (spec's four iotype tags).
type Type = api.IOType
