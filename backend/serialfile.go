package backend

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/momentics/pario/api"
)

// serialFileImage is the on-disk representation: a gob-encoded snapshot
// of one serialFileState's var/dim tables, written wholesale on every Sync. This
// stands in for netcdf-serial/netcdf4-serial's single-writer-talking-
// to-the-root behavior (spec §4.13) without requiring a real netCDF
// library anywhere in the retrieved pack.
type serialFileImage struct {
	Dims map[int]int64
	Vars map[int]serialVarImage
}

type serialVarImage struct {
	Name     string
	ElemType api.ElementType
	DimIDs   []int
	Atts     map[string]any
	Data     []byte
}

type serialFileState struct {
	mu      sync.Mutex
	path    string
	dims    map[int]int64
	nextDim int
	vars    map[int]serialVarImage
	nextVar int
}

// SerialFile is a gob-encoded, single-writer, file-backed Driver: only
// rank 0 of the owning IOSystem is expected to call it (mirroring
// "netcdf-serial"/"netcdf4-serial" funneling every write through the
// I/O root). Every Sync call rewrites the whole file.
type SerialFile struct {
	mu    sync.Mutex
	files map[int]*serialFileState
}

// NewSerialFile allocates a SerialFile driver with no open files.
func NewSerialFile() *SerialFile {
	return &SerialFile{files: make(map[int]*serialFileState)}
}

func (s *SerialFile) file(fileHandle int) (*serialFileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileHandle]
	if !ok {
		return nil, fmt.Errorf("backend.SerialFile: unknown file handle %d", fileHandle)
	}
	return f, nil
}

func (s *SerialFile) Create(ctx context.Context, fileHandle int, path string, mode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileHandle] = &serialFileState{
		path: path,
		dims: make(map[int]int64),
		vars: make(map[int]serialVarImage),
	}
	return nil
}

func (s *SerialFile) Open(ctx context.Context, fileHandle int, path string, mode int) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.Create(ctx, fileHandle, path, mode)
		}
		return err
	}
	var img serialFileImage
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&img); err != nil {
		return fmt.Errorf("backend.SerialFile: decode %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileHandle] = &serialFileState{path: path, dims: img.Dims, vars: img.Vars}
	return nil
}

func (s *SerialFile) Close(ctx context.Context, fileHandle int) error {
	if err := s.Sync(ctx, fileHandle); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileHandle)
	return nil
}

func (s *SerialFile) Sync(ctx context.Context, fileHandle int) error {
	f, err := s.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	img := serialFileImage{Dims: f.dims, Vars: f.vars}
	path := f.path
	f.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(img); err != nil {
		return fmt.Errorf("backend.SerialFile: encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func (s *SerialFile) DefDim(ctx context.Context, fileHandle int, name string, length int64) (int, error) {
	f, err := s.file(fileHandle)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextDim
	f.nextDim++
	f.dims[id] = length
	return id, nil
}

func (s *SerialFile) DefVar(ctx context.Context, fileHandle int, name string, elemType api.ElementType, dimIDs []int) (int, error) {
	f, err := s.file(fileHandle)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextVar
	f.nextVar++
	f.vars[id] = serialVarImage{Name: name, ElemType: elemType, DimIDs: dimIDs, Atts: make(map[string]any)}
	return id, nil
}

func (s *SerialFile) EndDef(ctx context.Context, fileHandle int) error {
	_, err := s.file(fileHandle)
	return err
}

func (s *SerialFile) PutAtt(ctx context.Context, fileHandle, varID int, name string, value any) error {
	f, err := s.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.SerialFile: unknown var %d", varID)
	}
	v.Atts[name] = value
	f.vars[varID] = v
	return nil
}

func (s *SerialFile) GetAtt(ctx context.Context, fileHandle, varID int, name string) (any, error) {
	f, err := s.file(fileHandle)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return nil, fmt.Errorf("backend.SerialFile: unknown var %d", varID)
	}
	val, ok := v.Atts[name]
	if !ok {
		return nil, fmt.Errorf("backend.SerialFile: no attribute %q on var %d", name, varID)
	}
	return val, nil
}

func (s *SerialFile) PutVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	f, err := s.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.SerialFile: unknown var %d", varID)
	}
	v.Data = append(v.Data, data...)
	f.vars[varID] = v
	return nil
}

func (s *SerialFile) GetVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	f, err := s.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.SerialFile: unknown var %d", varID)
	}
	n := copy(data, v.Data)
	if n < len(data) {
		return fmt.Errorf("backend.SerialFile: var %d holds only %d of %d requested bytes", varID, n, len(data))
	}
	return nil
}

func (s *SerialFile) PutVarsMulti(ctx context.Context, fileHandle int, vids []int, frames []int,
	elemType api.ElementType, arrayLen int, data []byte) error {
	f, err := s.file(fileHandle)
	if err != nil {
		return err
	}
	elemSize := elemType.Size()
	stride := arrayLen * elemSize
	if len(data) != len(vids)*stride {
		return fmt.Errorf("backend.SerialFile: PutVarsMulti data length %d, want %d", len(data), len(vids)*stride)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, vid := range vids {
		v, ok := f.vars[vid]
		if !ok {
			v = serialVarImage{ElemType: elemType, Atts: make(map[string]any)}
		}
		v.Data = append(v.Data, data[i*stride:(i+1)*stride]...)
		f.vars[vid] = v
	}
	return nil
}

func (s *SerialFile) Inquire(ctx context.Context, fileHandle int) (Info, error) {
	f, err := s.file(fileHandle)
	if err != nil {
		return Info{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	atts := 0
	for _, v := range f.vars {
		atts += len(v.Atts)
	}
	return Info{NumDims: len(f.dims), NumVars: len(f.vars), NumAtts: atts}, nil
}

func (s *SerialFile) Delete(ctx context.Context, path string) error {
	return os.Remove(path)
}

func (s *SerialFile) BufferAttach(size int) error { return nil }
func (s *SerialFile) BufferDetach() error         { return nil }
