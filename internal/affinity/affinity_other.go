//go:build !linux && !windows

package affinity

import "runtime"

func platformPreferredCPUID(numaNode int) int {
	total := runtime.NumCPU()
	if total <= 0 || numaNode < 0 {
		return 0
	}
	return numaNode % total
}

func platformCurrentNUMANodeID() int { return -1 }
func platformNUMANodes() int         { return 1 }

func platformPinCurrentThread(_, _ int) error {
	runtime.LockOSThread()
	return nil
}

func platformUnpinCurrentThread() error {
	return nil
}
