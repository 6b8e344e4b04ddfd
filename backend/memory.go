package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/momentics/pario/api"
)

type memVar struct {
	name     string
	elemType api.ElementType
	dimIDs   []int
	atts     map[string]any
	data     []byte // flat, grows as records are written
}

type memFile struct {
	mu       sync.Mutex
	path     string
	defining bool
	dims     map[int]int64
	nextDim  int
	vars     map[int]*memVar
	nextVar  int
	deleted  bool
}

// Memory is an in-process, always-available Driver with no on-disk
// footprint — the stand-in for "netcdf4-serial at dev-loop speed" spec
// §9 asks for, and the default driver every unit test in this module
// exercises. Modeled on the teacher's fake.Transport/fake.Buffer: a
// mutex-guarded in-memory store with predictable, inspectable state.
type Memory struct {
	mu    sync.Mutex
	files map[int]*memFile
}

// NewMemory allocates an empty Memory driver.
func NewMemory() *Memory {
	return &Memory{files: make(map[int]*memFile)}
}

func (m *Memory) file(fileHandle int) (*memFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fileHandle]
	if !ok {
		return nil, fmt.Errorf("backend.Memory: unknown file handle %d", fileHandle)
	}
	return f, nil
}

func (m *Memory) Create(ctx context.Context, fileHandle int, path string, mode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[fileHandle] = &memFile{
		path: path, defining: true,
		dims: make(map[int]int64), vars: make(map[int]*memVar),
	}
	return nil
}

func (m *Memory) Open(ctx context.Context, fileHandle int, path string, mode int) error {
	return m.Create(ctx, fileHandle, path, mode)
}

func (m *Memory) Close(ctx context.Context, fileHandle int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, fileHandle)
	return nil
}

func (m *Memory) Sync(ctx context.Context, fileHandle int) error {
	_, err := m.file(fileHandle)
	return err
}

func (m *Memory) DefDim(ctx context.Context, fileHandle int, name string, length int64) (int, error) {
	f, err := m.file(fileHandle)
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

func (m *Memory) DefVar(ctx context.Context, fileHandle int, name string, elemType api.ElementType, dimIDs []int) (int, error) {
	f, err := m.file(fileHandle)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextVar
	f.nextVar++
	f.vars[id] = &memVar{name: name, elemType: elemType, dimIDs: dimIDs, atts: make(map[string]any)}
	return id, nil
}

func (m *Memory) EndDef(ctx context.Context, fileHandle int) error {
	f, err := m.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defining = false
	return nil
}

func (m *Memory) PutAtt(ctx context.Context, fileHandle, varID int, name string, value any) error {
	f, err := m.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.Memory: unknown var %d", varID)
	}
	v.atts[name] = value
	return nil
}

func (m *Memory) GetAtt(ctx context.Context, fileHandle, varID int, name string) (any, error) {
	f, err := m.file(fileHandle)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return nil, fmt.Errorf("backend.Memory: unknown var %d", varID)
	}
	val, ok := v.atts[name]
	if !ok {
		return nil, fmt.Errorf("backend.Memory: no attribute %q on var %d", name, varID)
	}
	return val, nil
}

func (m *Memory) PutVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	f, err := m.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.Memory: unknown var %d", varID)
	}
	v.data = append(v.data, data...)
	return nil
}

func (m *Memory) GetVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	f, err := m.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.Memory: unknown var %d", varID)
	}
	n := copy(data, v.data)
	if n < len(data) {
		return fmt.Errorf("backend.Memory: var %d holds only %d of %d requested bytes", varID, n, len(data))
	}
	return nil
}

// PutVarsMulti appends data to every named var's store in lockstep —
// the memory stand-in for a single non-blocking collective write of
// every variable in iobuf's aggregated buffer.
func (m *Memory) PutVarsMulti(ctx context.Context, fileHandle int, vids []int, frames []int,
	elemType api.ElementType, arrayLen int, data []byte) error {
	f, err := m.file(fileHandle)
	if err != nil {
		return err
	}
	elemSize := elemType.Size()
	want := len(vids) * arrayLen * elemSize
	if len(data) != want {
		return fmt.Errorf("backend.Memory: PutVarsMulti data length %d, want %d", len(data), want)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stride := arrayLen * elemSize
	for i, vid := range vids {
		v, ok := f.vars[vid]
		if !ok {
			v = &memVar{elemType: elemType, atts: make(map[string]any)}
			f.vars[vid] = v
		}
		v.data = append(v.data, data[i*stride:(i+1)*stride]...)
	}
	return nil
}

func (m *Memory) Inquire(ctx context.Context, fileHandle int) (Info, error) {
	f, err := m.file(fileHandle)
	if err != nil {
		return Info{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	atts := 0
	for _, v := range f.vars {
		atts += len(v.atts)
	}
	return Info{NumDims: len(f.dims), NumVars: len(f.vars), NumAtts: atts}, nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, f := range m.files {
		if f.path == path {
			delete(m.files, h)
		}
	}
	return nil
}

func (m *Memory) BufferAttach(size int) error { return nil }
func (m *Memory) BufferDetach() error         { return nil }
