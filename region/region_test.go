package region

import "testing"

func TestIdxToDimListRoundTrip(t *testing.T) {
	gdims := []int{4, 3, 2}
	for idx := int64(0); idx < 24; idx++ {
		coord := IdxToDimList(gdims, idx)
		got := CoordToLIndex(gdims, coord)
		if got != idx {
			t.Fatalf("round-trip mismatch: idx=%d coord=%v got=%d", idx, coord, got)
		}
	}
}

func TestFindRegionWholeArray(t *testing.T) {
	gdims := []int{2, 3}
	mapv := make([]int64, 6)
	for i := range mapv {
		mapv[i] = int64(i + 1)
	}
	start, count, consumed := FindRegion(gdims, mapv)
	if consumed != 6 {
		t.Fatalf("expected to consume whole map, got %d", consumed)
	}
	for i, c := range count {
		if c != gdims[i] {
			t.Fatalf("count[%d]=%d want %d", i, c, gdims[i])
		}
	}
	for _, s := range start {
		if s != 0 {
			t.Fatalf("start=%v want all zero", start)
		}
	}
}

func TestFindRegionPartialRow(t *testing.T) {
	gdims := []int{2, 4}
	// Only the first 2 of 4 columns on row 0 are contiguous.
	mapv := []int64{1, 2, 7, 8}
	start, count, consumed := FindRegion(gdims, mapv)
	if consumed != 2 {
		t.Fatalf("consumed=%d want 2", consumed)
	}
	if start[0] != 0 || start[1] != 0 {
		t.Fatalf("start=%v want [0 0]", start)
	}
	if count[0] != 1 || count[1] != 2 {
		t.Fatalf("count=%v want [1 2]", count)
	}
}

func TestBuildRegionsSkipsHoles(t *testing.T) {
	gdims := []int{2, 2}
	mapv := []int64{1, 2, 0, 4}
	regions := BuildRegions(gdims, mapv)
	var total int64
	for _, r := range regions {
		total += r.Size()
	}
	if total != 3 {
		t.Fatalf("expected 3 non-hole elements covered, got %d", total)
	}
}

func TestBuildRegionsDisjointBlocks(t *testing.T) {
	gdims := []int{3, 3}
	mapv := []int64{1, 2, 3, 7, 8, 9}
	regions := BuildRegions(gdims, mapv)
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions, got %d: %+v", len(regions), regions)
	}
}
