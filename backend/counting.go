package backend

import (
	"context"
	"sync"

	"github.com/momentics/pario/api"
)

// Counting wraps another Driver and tallies how many times each method
// was called, the exact harness spec §8 scenario 3 asks for: "observable
// by wrapping the back-end in a counter."
type Counting struct {
	Inner Driver

	mu     sync.Mutex
	Counts map[string]int
}

// NewCounting wraps inner with a fresh call tally.
func NewCounting(inner Driver) *Counting {
	return &Counting{Inner: inner, Counts: make(map[string]int)}
}

func (c *Counting) bump(name string) {
	c.mu.Lock()
	c.Counts[name]++
	c.mu.Unlock()
}

// Calls reports how many times method was invoked.
func (c *Counting) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Counts[method]
}

func (c *Counting) Create(ctx context.Context, fileHandle int, path string, mode int) error {
	c.bump("Create")
	return c.Inner.Create(ctx, fileHandle, path, mode)
}

func (c *Counting) Open(ctx context.Context, fileHandle int, path string, mode int) error {
	c.bump("Open")
	return c.Inner.Open(ctx, fileHandle, path, mode)
}

func (c *Counting) Close(ctx context.Context, fileHandle int) error {
	c.bump("Close")
	return c.Inner.Close(ctx, fileHandle)
}

func (c *Counting) Sync(ctx context.Context, fileHandle int) error {
	c.bump("Sync")
	return c.Inner.Sync(ctx, fileHandle)
}

func (c *Counting) DefDim(ctx context.Context, fileHandle int, name string, length int64) (int, error) {
	c.bump("DefDim")
	return c.Inner.DefDim(ctx, fileHandle, name, length)
}

func (c *Counting) DefVar(ctx context.Context, fileHandle int, name string, elemType api.ElementType, dimIDs []int) (int, error) {
	c.bump("DefVar")
	return c.Inner.DefVar(ctx, fileHandle, name, elemType, dimIDs)
}

func (c *Counting) EndDef(ctx context.Context, fileHandle int) error {
	c.bump("EndDef")
	return c.Inner.EndDef(ctx, fileHandle)
}

func (c *Counting) PutAtt(ctx context.Context, fileHandle, varID int, name string, value any) error {
	c.bump("PutAtt")
	return c.Inner.PutAtt(ctx, fileHandle, varID, name, value)
}

func (c *Counting) GetAtt(ctx context.Context, fileHandle, varID int, name string) (any, error) {
	c.bump("GetAtt")
	return c.Inner.GetAtt(ctx, fileHandle, varID, name)
}

func (c *Counting) PutVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	c.bump("PutVars")
	return c.Inner.PutVars(ctx, fileHandle, varID, start, count, data)
}

func (c *Counting) GetVars(ctx context.Context, fileHandle, varID int, start, count []int, data []byte) error {
	c.bump("GetVars")
	return c.Inner.GetVars(ctx, fileHandle, varID, start, count, data)
}

func (c *Counting) PutVarsMulti(ctx context.Context, fileHandle int, vids []int, frames []int,
	elemType api.ElementType, arrayLen int, data []byte) error {
	c.bump("PutVarsMulti")
	return c.Inner.PutVarsMulti(ctx, fileHandle, vids, frames, elemType, arrayLen, data)
}

func (c *Counting) Inquire(ctx context.Context, fileHandle int) (Info, error) {
	c.bump("Inquire")
	return c.Inner.Inquire(ctx, fileHandle)
}

func (c *Counting) Delete(ctx context.Context, path string) error {
	c.bump("Delete")
	return c.Inner.Delete(ctx, path)
}

func (c *Counting) BufferAttach(size int) error {
	c.bump("BufferAttach")
	return c.Inner.BufferAttach(size)
}

func (c *Counting) BufferDetach() error {
	c.bump("BufferDetach")
	return c.Inner.BufferDetach()
}
