package backend

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/momentics/pario/api"
	"github.com/momentics/pario/comm"
)

// ParallelFile is a sharded-by-rank, file-backed Driver: every I/O rank
// holds its own shard (path + ".shardN") and writes it directly, the
// stand-in for "pnetcdf"/"netcdf4-parallel" where every I/O task issues
// the back-end call itself (api.IOType.Parallel()) instead of funneling
// through a root. A Sync call writes this rank's shard to disk, then
// blocks at g's barrier so every rank's shard lands before any rank's
// Sync call returns — the closest in-process analogue to pnetcdf's
// collective close semantics.
type ParallelFile struct {
	Group *comm.Group
	Rank  int

	mu    sync.Mutex
	files map[int]*serialFileState
}

// NewParallelFile binds a ParallelFile driver to one rank of g.
func NewParallelFile(g *comm.Group, rank int) *ParallelFile {
	return &ParallelFile{Group: g, Rank: rank, files: make(map[int]*serialFileState)}
}

func (p *ParallelFile) shardPath(path string) string {
	return fmt.Sprintf("%s.shard%d", path, p.Rank)
}

func (p *ParallelFile) file(fileHandle int) (*serialFileState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[fileHandle]
	if !ok {
		return nil, fmt.Errorf("backend.ParallelFile: unknown file handle %d", fileHandle)
	}
	return f, nil
}

func (p *ParallelFile) Create(ctx context.Context, fileHandle int, path string, mode int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[fileHandle] = &serialFileState{
		path: path,
		dims: make(map[int]int64),
		vars: make(map[int]serialVarImage),
	}
	return nil
}

func (p *ParallelFile) Open(ctx context.Context, fileHandle int, path string, mode int) error {
	raw, err := os.ReadFile(p.shardPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return p.Create(ctx, fileHandle, path, mode)
		}
		return err
	}
	var img serialFileImage
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&img); err != nil {
		return fmt.Errorf("backend.ParallelFile: decode %s: %w", p.shardPath(path), err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[fileHandle] = &serialFileState{path: path, dims: img.Dims, vars: img.Vars}
	return nil
}

func (p *ParallelFile) Close(ctx context.Context, fileHandle int) error {
	if err := p.Sync(ctx, fileHandle); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, fileHandle)
	return nil
}

// Sync writes this rank's shard, then waits at g's barrier so a caller
// observing Sync's return on any rank knows every rank's shard is safely
// on disk — collective-close semantics without a collective write path.
func (p *ParallelFile) Sync(ctx context.Context, fileHandle int) error {
	f, err := p.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	img := serialFileImage{Dims: f.dims, Vars: f.vars}
	path := p.shardPath(f.path)
	f.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(img); err != nil {
		return fmt.Errorf("backend.ParallelFile: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if p.Group != nil {
		return p.Group.Barrier(ctx)
	}
	return nil
}

func (p *ParallelFile) DefDim(ctx context.Context, fileHandle int, name string, length int64) (int, error) {
	f, err := p.file(fileHandle)
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

func (p *ParallelFile) DefVar(ctx context.Context, fileHandle int, name string, elemType api.ElementType, dimIDs []int) (int, error) {
	f, err := p.file(fileHandle)
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

func (p *ParallelFile) EndDef(ctx context.Context, fileHandle int) error {
	_, err := p.file(fileHandle)
	return err
}

func (p *ParallelFile) PutAtt(ctx context.Context, fileHandle, varID int, name string, value any) error {
	f, err := p.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.ParallelFile: unknown var %d", varID)
	}
	v.Atts[name] = value
	f.vars[varID] = v
	return nil
}

func (p *ParallelFile) GetAtt(ctx context.Context, fileHandle, varID int, name string) (any, error) {
	f, err := p.file(fileHandle)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return nil, fmt.Errorf("backend.ParallelFile: unknown var %d", varID)
	}
	val, ok := v.Atts[name]
	if !ok {
		return nil, fmt.Errorf("backend.ParallelFile: no attribute %q on var %d", name, varID)
	}
	return val, nil
}

// PutVars writes this rank's own region directly — the defining
// behavior of a parallel back-end: no funneling through an I/O root.
func (p *ParallelFile) PutVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	f, err := p.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.ParallelFile: unknown var %d", varID)
	}
	v.Data = append(v.Data, data...)
	f.vars[varID] = v
	return nil
}

func (p *ParallelFile) GetVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	f, err := p.file(fileHandle)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vars[varID]
	if !ok {
		return fmt.Errorf("backend.ParallelFile: unknown var %d", varID)
	}
	n := copy(data, v.Data)
	if n < len(data) {
		return fmt.Errorf("backend.ParallelFile: var %d holds only %d of %d requested bytes", varID, n, len(data))
	}
	return nil
}

func (p *ParallelFile) PutVarsMulti(ctx context.Context, fileHandle int, vids []int, frames []int,
	elemType api.ElementType, arrayLen int, data []byte) error {
	f, err := p.file(fileHandle)
	if err != nil {
		return err
	}
	elemSize := elemType.Size()
	stride := arrayLen * elemSize
	if len(data) != len(vids)*stride {
		return fmt.Errorf("backend.ParallelFile: PutVarsMulti data length %d, want %d", len(data), len(vids)*stride)
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

func (p *ParallelFile) Inquire(ctx context.Context, fileHandle int) (Info, error) {
	f, err := p.file(fileHandle)
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

func (p *ParallelFile) Delete(ctx context.Context, path string) error {
	return os.Remove(p.shardPath(path))
}

func (p *ParallelFile) BufferAttach(size int) error { return nil }
func (p *ParallelFile) BufferDetach() error         { return nil }
