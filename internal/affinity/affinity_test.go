package affinity

import "testing"

func TestPinCurrentThreadAcceptsAnyCPU(t *testing.T) {
	if err := PinCurrentThread(0, -1); err != nil {
		t.Fatalf("PinCurrentThread(0, -1): %v", err)
	}
	if err := UnpinCurrentThread(); err != nil {
		t.Fatalf("UnpinCurrentThread: %v", err)
	}
}

func TestPreferredCPUIDNeverNegative(t *testing.T) {
	if id := PreferredCPUID(-1); id < 0 {
		t.Fatalf("PreferredCPUID(-1) = %d, want >= 0", id)
	}
	if id := PreferredCPUID(3); id < 0 {
		t.Fatalf("PreferredCPUID(3) = %d, want >= 0", id)
	}
}

func TestNUMANodesAtLeastOne(t *testing.T) {
	if NUMANodes() < 1 {
		t.Fatalf("NUMANodes() = %d, want >= 1", NUMANodes())
	}
}
