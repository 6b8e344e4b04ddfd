// Package perr implements the library's error taxonomy and its
// three-way propagation policy (spec §7, C12): a failure surfaces as a
// `perr.Code` wrapping its cause, and a `Policy` decides whether that
// code stays local to the originating rank or is unified across an
// IOSystem's union group before the caller observes it.
package perr

import (
	"context"
	"fmt"

	"github.com/momentics/pario/comm"
)

// Code classifies a failure the way spec §7's table does.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeBadHandle
	CodeNoMemory
	CodePermission
	CodeMPIFailure
	CodeBackend
	CodeConvergenceFailure
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeBadHandle:
		return "bad handle"
	case CodeNoMemory:
		return "no memory"
	case CodePermission:
		return "permission denied"
	case CodeMPIFailure:
		return "transport failure"
	case CodeBackend:
		return "backend error"
	case CodeConvergenceFailure:
		return "planner failed to converge"
	default:
		return "internal error"
	}
}

// Error wraps an underlying cause with the failing operation's name and
// its classification code.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for the given operation.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// ErrConvergenceFailure carries CodeConvergenceFailure, spec §7's
// "Convergence failure" row. No function in this module returns it:
// iomap.CalcStartAndCount always succeeds, falling back to one I/O task.
var ErrConvergenceFailure = New(CodeConvergenceFailure, "iomap.CalcStartAndCount",
	fmt.Errorf("planner exhausted io task counts without tiling the array"))

// Disposition is one of the three error dispositions spec §7 names.
type Disposition int

const (
	// DispositionReturn hands the code back to the originating rank
	// only; other ranks that never entered the operation see success.
	// Callers must not assume symmetric error returns in this mode.
	DispositionReturn Disposition = iota
	// DispositionBroadcast unifies the code across the IOSystem's union
	// group at the next collective point, so every rank observes the
	// same outcome.
	DispositionBroadcast
	// DispositionInternal behaves like Broadcast but signals to the
	// caller (iosystem.System) that it may choose to abort the process
	// on a non-OK code; perr itself never calls os.Exit.
	DispositionInternal
)

// Policy governs how one IOSystem reconciles per-rank errors.
type Policy struct {
	Disposition Disposition
}

// codeOf extracts the Code from err, defaulting to CodeInternal for any
// error perr does not itself recognize (e.g. a context cancellation
// surfaced from comm).
func codeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeInternal
}

// Reconcile applies the policy's disposition to one rank's local error.
// Under DispositionReturn it is a pass-through — no communication, no
// blocking. Under DispositionBroadcast/DispositionInternal every rank
// in g must call Reconcile (it performs a collective all-reduce), and
// every rank receives a non-nil error whenever any rank failed: a rank
// that failed gets its own error back, every other rank gets a
// "broadcast" *Error carrying the highest code in the group.
func (p Policy) Reconcile(ctx context.Context, g *comm.Group, rank int, localErr error) error {
	if p.Disposition == DispositionReturn {
		return localErr
	}

	maxCode, err := comm.AllreduceMax(ctx, g, rank, int(codeOf(localErr)))
	if err != nil {
		return err
	}
	if Code(maxCode) == CodeOK {
		return nil
	}
	if localErr != nil {
		return localErr
	}
	return New(Code(maxCode), "broadcast", fmt.Errorf("operation failed on a peer rank"))
}
