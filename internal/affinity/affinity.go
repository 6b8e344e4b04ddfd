// Package affinity pins I/O-task goroutines to OS threads/CPUs, the
// concern spec §5's "dedicated I/O tasks" benefits from but the source
// library leaves to the job scheduler's process placement. Consolidated
// from the teacher's several build-tag-split, partly-broken
// internal/concurrency/affinity*.go variants (two of which declared
// platformPinCurrentThread under the identical `linux && !cgo` build
// tag, a compile error in the copied tree) into one small, cgo-free
// surface backed by golang.org/x/sys's raw syscall bindings.
package affinity

// PinCurrentThread locks the calling goroutine to its current OS thread
// and, where the platform supports it, binds that thread to cpuID.
// cpuID < 0 means "any CPU" (thread still locked, no affinity set).
// numaNode is informational only on platforms without NUMA syscalls.
func PinCurrentThread(numaNode, cpuID int) error {
	return platformPinCurrentThread(numaNode, cpuID)
}

// UnpinCurrentThread clears any affinity set by PinCurrentThread.
func UnpinCurrentThread() error {
	return platformUnpinCurrentThread()
}

// CurrentNUMANodeID reports the calling thread's NUMA node, or -1 if
// unknown/unsupported.
func CurrentNUMANodeID() int {
	return platformCurrentNUMANodeID()
}

// NUMANodes reports the number of configured NUMA nodes, or 1 if
// NUMA information is unavailable.
func NUMANodes() int {
	return platformNUMANodes()
}

// PreferredCPUID suggests a CPU index for the given NUMA node — workers
// that don't care which CPU within a node they land on can use this
// directly as PinCurrentThread's cpuID argument.
func PreferredCPUID(numaNode int) int {
	return platformPreferredCPUID(numaNode)
}
