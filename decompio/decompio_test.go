package decompio

import (
	"path/filepath"
	"reflect"
	"testing"
)

func sampleDecomposition() Decomposition {
	return Decomposition{
		Version: CurrentVersion,
		Tasks:   4,
		NDims:   2,
		DimLens: []int{2, 4},
		MapLen:  2,
		Map:     []int64{1, 2},
	}
}

func TestWriteTextReadTextRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp.txt")
	want := sampleDecomposition()
	if err := WriteText(path, want); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got, err := ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestWriteTextRoundTripsHoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp-holes.txt")
	want := Decomposition{
		Version: 1, Tasks: 2, NDims: 1, DimLens: []int{4},
		MapLen: 4, Map: []int64{1, 0, 0, 4},
	}
	if err := WriteText(path, want); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got, err := ReadText(path)
	if err != nil {
		t.Fatalf("ReadText: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestWriteTOMLReadTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decomp.toml")
	want := sampleDecomposition()
	if err := WriteTOML(path, want); err != nil {
		t.Fatalf("WriteTOML: %v", err)
	}
	got, err := ReadTOML(path)
	if err != nil {
		t.Fatalf("ReadTOML: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestWriteTextRejectsLengthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	bad := Decomposition{NDims: 2, DimLens: []int{1}, MapLen: 1, Map: []int64{1}}
	if err := WriteText(path, bad); err == nil {
		t.Fatal("expected error for DimLens/NDims mismatch, got nil")
	}
}
