// Package registry implements the process-wide lookup tables spec §9
// calls for ("handles + central registry, not pointer graphs") and
// C11's lifecycle bookkeeping. It generalizes pio_lists.c's three
// singly-linked-list-with-"current"-pointer tables (files, iosystems,
// iodescs) into one generic, mutex-protected Table[T], preserving each
// table's distinctive handle-allocation rule and its "last accessed
// entry" fast path.
package registry

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Handle is a weak reference into a Table — never a pointer, per spec
// §9's ownership guidance.
type Handle int

// Handle-allocation constants, preserved verbatim from pio_lists.c:
// pio_add_to_file_list (files start at 16 — observed convention kept
// intact rather than renumbered from 0), pio_add_to_iosystem_list
// (`ios->iosysid = i << 16`), pio_add_to_iodesc_list (`imax = 512`).
const (
	FileHandleBase      Handle = 16
	FileHandleStep      Handle = 1
	IOSystemHandleUnit  Handle = 1 << 16
	IODescHandleBase    Handle = 512
	IODescHandleStep    Handle = 1
)

// Table is a generic, concurrency-safe registry of handle -> value,
// with a one-entry "current" cache mirroring pio_lists.c's
// current_file/current_iodesc fast path (the most recently added or
// looked-up entry is checked before the full map lookup).
type Table[T any] struct {
	mu      sync.Mutex
	entries map[Handle]T
	next    Handle
	step    Handle
	current Handle
	hasCur  bool
}

// NewTable allocates a Table whose handles start at start and increase
// by step on every Add (the table never reuses a handle after Delete).
func NewTable[T any](start, step Handle) *Table[T] {
	return &Table[T]{entries: make(map[Handle]T), next: start, step: step}
}

// NewFileTable, NewIOSystemTable, NewIODescTable apply each entity's
// handle-allocation rule from pio_lists.c.
func NewFileTable[T any]() *Table[T]     { return NewTable[T](FileHandleBase, FileHandleStep) }
func NewIOSystemTable[T any]() *Table[T] { return NewTable[T](IOSystemHandleUnit, IOSystemHandleUnit) }
func NewIODescTable[T any]() *Table[T]   { return NewTable[T](IODescHandleBase, IODescHandleStep) }

// Add registers v under a freshly allocated handle.
func (t *Table[T]) Add(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next += t.step
	t.entries[h] = v
	t.current = h
	t.hasCur = true
	return h
}

// Get looks up h, checking the "current" cache first.
func (t *Table[T]) Get(h Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasCur && t.current == h {
		v, ok := t.entries[h]
		return v, ok
	}
	v, ok := t.entries[h]
	if ok {
		t.current = h
		t.hasCur = true
	}
	return v, ok
}

// Delete removes h from the table, clearing the current cache if it
// pointed at the deleted entry (pio_delete_file_from_list's
// `if (current_file == cfile) current_file = pfile`, simplified here to
// "no current" since the map has no natural predecessor to fall back to).
func (t *Table[T]) Delete(h Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[h]; !ok {
		return false
	}
	delete(t.entries, h)
	if t.hasCur && t.current == h {
		t.hasCur = false
	}
	return true
}

// Len reports the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Dedup coalesces concurrent GetOrCreate calls that share a key into a
// single construction, used by iosystem.New to avoid racing two ranks
// in the same process into building two IOSystem records for the same
// logical configuration.
type Dedup[T any] struct {
	sf    singleflight.Group
	mu    sync.Mutex
	byKey map[string]T
}

// NewDedup allocates an empty Dedup.
func NewDedup[T any]() *Dedup[T] {
	return &Dedup[T]{byKey: make(map[string]T)}
}

// GetOrCreate returns the cached value for key, or calls create exactly
// once across however many concurrent callers race on the same key.
func (d *Dedup[T]) GetOrCreate(key string, create func() (T, error)) (T, error) {
	v, err, _ := d.sf.Do(key, func() (interface{}, error) {
		d.mu.Lock()
		if existing, ok := d.byKey[key]; ok {
			d.mu.Unlock()
			return existing, nil
		}
		d.mu.Unlock()

		created, err := create()
		if err != nil {
			var zero T
			return zero, err
		}

		d.mu.Lock()
		d.byKey[key] = created
		d.mu.Unlock()
		return created, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
