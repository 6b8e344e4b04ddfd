// File: api/types.go
//
// Shared API-level type declarations, DTOs, and constants.

package api

import (
	"fmt"
	"time"
)

// ElementType is the closed set of element types a decomposition or
// variable may carry. Replaces a runtime nc_type dispatch with a
// pattern-matchable tagged variant (SPEC_FULL.md §3).
type ElementType int8

const (
	ElemUnknown ElementType = iota
	ElemInt8
	ElemUint8
	ElemInt16
	ElemUint16
	ElemInt32
	ElemUint32
	ElemInt64
	ElemUint64
	ElemChar
	ElemFloat32
	ElemFloat64
)

// Size returns the byte width of one element.
func (t ElementType) Size() int {
	switch t {
	case ElemInt8, ElemUint8, ElemChar:
		return 1
	case ElemInt16, ElemUint16:
		return 2
	case ElemInt32, ElemUint32, ElemFloat32:
		return 4
	case ElemInt64, ElemUint64, ElemFloat64:
		return 8
	default:
		return 0
	}
}

// Float reports whether the type is a floating-point type.
func (t ElementType) Float() bool {
	return t == ElemFloat32 || t == ElemFloat64
}

func (t ElementType) String() string {
	switch t {
	case ElemInt8:
		return "int8"
	case ElemUint8:
		return "uint8"
	case ElemInt16:
		return "int16"
	case ElemUint16:
		return "uint16"
	case ElemInt32:
		return "int32"
	case ElemUint32:
		return "uint32"
	case ElemInt64:
		return "int64"
	case ElemUint64:
		return "uint64"
	case ElemChar:
		return "char"
	case ElemFloat32:
		return "float32"
	case ElemFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// IOType is the closed set of back-end drivers a File may bind to
// (SPEC_FULL.md §4.13). It stands in for the source's four iotype
// identifiers (pnetcdf, netcdf-serial, netcdf4-serial, netcdf4-parallel).
type IOType int8

const (
	IOTypeUnknown IOType = iota
	IOTypePNetCDF
	IOTypeNetCDFSerial
	IOTypeNetCDF4Serial
	IOTypeNetCDF4Parallel
)

func (t IOType) String() string {
	switch t {
	case IOTypePNetCDF:
		return "pnetcdf"
	case IOTypeNetCDFSerial:
		return "netcdf-serial"
	case IOTypeNetCDF4Serial:
		return "netcdf4-serial"
	case IOTypeNetCDF4Parallel:
		return "netcdf4-parallel"
	default:
		return "unknown"
	}
}

// Parallel reports whether every I/O rank issues the back-end call
// itself (pnetcdf/netcdf4-parallel), as opposed to funneling through
// the I/O root (the two serial back-ends).
func (t IOType) Parallel() bool {
	return t == IOTypePNetCDF || t == IOTypeNetCDF4Parallel
}

// Rearranger selects the algorithm used to build a decomposition's
// communication plan.
type Rearranger int8

const (
	RearrangerNone Rearranger = iota
	RearrangerBox
	RearrangerSubset
)

func (r Rearranger) String() string {
	switch r {
	case RearrangerBox:
		return "box"
	case RearrangerSubset:
		return "subset"
	default:
		return "none"
	}
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}

// HoleSentinel is the compute-map value denoting a hole: this element
// is not written by any compute rank and, on read, receives the fill
// value. Map entries are otherwise 1-based global linear indices.
const HoleSentinel int64 = 0

// FormatDims renders a dimension-length slice for log lines and errors.
func FormatDims(dims []int) string {
	return fmt.Sprintf("%v", dims)
}
