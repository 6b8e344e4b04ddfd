// Package decompio implements the decomposition file format (spec §6,
// C13): a text dump carrying a compute map's shape (`ndims`,
// `dimlens[ndims]`, `maplen`, `map[maplen]`, plus an optional version
// and task count, 0-based on disk) and a structured variant for large
// maps. This is the Go counterpart of PIOc_writemap/PIOc_readmap
// (original_source/src/clib/pioc.c).
package decompio

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
)

// CurrentVersion is stamped into every file this package writes.
const CurrentVersion = 1

// Decomposition is the on-disk/in-memory shape of one compute map: the
// global array's dimensions plus the calling rank's (1-based, 0 marking
// a hole) index map, exactly the arguments PIOc_InitDecomp/BuildBoxPlan/
// BuildSubsetPlan take as compMap.
type Decomposition struct {
	Version int
	Tasks   int
	NDims   int
	DimLens []int
	MapLen  int
	Map     []int64
}

func lockPath(path string) string { return path + ".lock" }

// WriteText writes the header text dump spec §6 describes: one value or
// list per line, map entries converted to the on-disk 0-based form
// (and holes, in-memory 0, written as -1 so the format stays
// unambiguous about which entries are holes rather than valid index 0).
func WriteText(path string, d Decomposition) error {
	if len(d.DimLens) != d.NDims {
		return fmt.Errorf("decompio: NDims=%d but len(DimLens)=%d", d.NDims, len(d.DimLens))
	}
	if len(d.Map) != d.MapLen {
		return fmt.Errorf("decompio: MapLen=%d but len(Map)=%d", d.MapLen, len(d.Map))
	}

	fl := flock.New(lockPath(path))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("decompio: lock %s: %w", path, err)
	}
	defer fl.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("decompio: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "version %d\n", d.Version)
	fmt.Fprintf(w, "tasks %d\n", d.Tasks)
	fmt.Fprintf(w, "ndims %d\n", d.NDims)
	dims := make([]string, d.NDims)
	for i, v := range d.DimLens {
		dims[i] = strconv.Itoa(v)
	}
	fmt.Fprintf(w, "dimlens %s\n", strings.Join(dims, " "))
	fmt.Fprintf(w, "maplen %d\n", d.MapLen)
	entries := make([]string, d.MapLen)
	for i, v := range d.Map {
		entries[i] = strconv.FormatInt(v-1, 10) // 0 stays a hole marker (0-1 = -1)
	}
	fmt.Fprintf(w, "map %s\n", strings.Join(entries, " "))
	return w.Flush()
}

// ReadText reads back a file written by WriteText. Per spec §6's
// round-trip contract, the returned Decomposition reproduces the
// in-memory map exactly (up to choice of rearranger, which this format
// never records).
func ReadText(path string) (Decomposition, error) {
	var d Decomposition

	f, err := os.Open(path)
	if err != nil {
		return d, fmt.Errorf("decompio: open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	fields := map[string]string{}
	for sc.Scan() {
		line := sc.Text()
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			continue
		}
		fields[parts[0]] = parts[1]
	}
	if err := sc.Err(); err != nil {
		return d, fmt.Errorf("decompio: read %s: %w", path, err)
	}

	if d.Version, err = atoiField(fields, "version"); err != nil {
		return d, err
	}
	if d.Tasks, err = atoiField(fields, "tasks"); err != nil {
		return d, err
	}
	if d.NDims, err = atoiField(fields, "ndims"); err != nil {
		return d, err
	}
	d.DimLens, err = atoiList(fields["dimlens"])
	if err != nil {
		return d, fmt.Errorf("decompio: dimlens: %w", err)
	}
	if d.MapLen, err = atoiField(fields, "maplen"); err != nil {
		return d, err
	}
	raw, err := atoi64List(fields["map"])
	if err != nil {
		return d, fmt.Errorf("decompio: map: %w", err)
	}
	d.Map = make([]int64, len(raw))
	for i, v := range raw {
		d.Map[i] = v + 1 // -1 (hole) -> 0; n -> n+1
	}
	return d, nil
}

func atoiField(fields map[string]string, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("decompio: missing field %q", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("decompio: field %q: %w", key, err)
	}
	return n, nil
}

func atoiList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Fields(s)
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func atoi64List(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Fields(s)
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// WriteTOML writes the "binary netCDF-based variant ... for large maps"
// spec §6 calls for, as a structured TOML document instead — no netCDF
// binding exists anywhere in the retrieved pack (see DESIGN.md). The
// map is kept in-memory 1-based/0-hole form directly; TOML's own
// structure makes the on-disk 0-based reshaping WriteText needs
// unnecessary.
func WriteTOML(path string, d Decomposition) error {
	if d.Version == 0 {
		d.Version = CurrentVersion
	}
	fl := flock.New(lockPath(path))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("decompio: lock %s: %w", path, err)
	}
	defer fl.Unlock()

	data, err := toml.Marshal(d)
	if err != nil {
		return fmt.Errorf("decompio: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("decompio: write %s: %w", path, err)
	}
	return nil
}

// ReadTOML reads back a file written by WriteTOML.
func ReadTOML(path string) (Decomposition, error) {
	var d Decomposition
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("decompio: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decompio: unmarshal %s: %w", path, err)
	}
	return d, nil
}
