// Package object is a minimal stand-in for the generic object/handle
// manager spec.md declares out of scope (§1): reference counts, name
// lookup under a directory, and security-descriptor storage. The pipe
// core only ever talks to the small surface captured here
// (Namespace.OpenIf, Table.Alloc/Close, SecurityDescriptor) — exactly the
// interfaces spec.md §6 says it consumes — so swapping this for a real
// object manager later is a matter of satisfying the same methods.
package object

import (
	"sync"
	"sync/atomic"

	"github.com/wine-np/npserver/internal/status"
)

// SecurityDescriptor is stored and handed back opaquely: access checks are
// the host object-manager's job, not this subsystem's (spec.md §1).
type SecurityDescriptor []byte

// Destroyer is implemented by anything a Table can own: when a handle's
// reference count reaches zero, Destroy runs exactly once.
type Destroyer interface {
	Destroy()
}

// Namespace implements OPEN-IF lookup-or-create under a single directory,
// the way named_pipe_open_file and create_named_object behave for the
// NamedPipe device's object namespace.
type Namespace struct {
	mu      sync.Mutex
	entries map[string]any
}

// NewNamespace returns an empty object namespace.
func NewNamespace() *Namespace {
	return &Namespace{entries: make(map[string]any)}
}

// OpenIf looks up name; if absent, it calls create and stores the result.
// It reports whether the returned object already existed, matching the
// distinction create_named_pipe makes between a fresh NamedPipe (which it
// initializes) and a pre-existing one (which it validates against).
func (n *Namespace) OpenIf(name string, create func() (any, error)) (obj any, existed bool, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing, ok := n.entries[name]; ok {
		return existing, true, nil
	}
	obj, err = create()
	if err != nil {
		return nil, false, err
	}
	n.entries[name] = obj
	return obj, false, nil
}

// Lookup returns the object registered under name, if any.
func (n *Namespace) Lookup(name string) (any, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	obj, ok := n.entries[name]
	return obj, ok
}

// Remove drops name from the namespace, called once a NamedPipe's instance
// count drops to zero and its server list is empty (spec.md §3).
func (n *Namespace) Remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries, name)
}

// Table allocates and reference-counts opaque handles over arbitrary
// objects, the way alloc_handle/close_handle do for every object type in
// the real server.
type Table struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*tableEntry
}

type tableEntry struct {
	obj  any
	refs int32
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{entries: make(map[uint64]*tableEntry)}
}

// Alloc registers obj under a freshly minted handle with one reference.
func (t *Table) Alloc(obj any) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	id := t.next
	t.entries[id] = &tableEntry{obj: obj, refs: 1}
	return id
}

// Get resolves a handle to its object without affecting its reference count.
func (t *Table) Get(id uint64) (any, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, status.InvalidHandle
	}
	return e.obj, status.Success
}

// AddRef grabs an additional reference on an already-allocated handle,
// mirroring grab_object used when an object gains a second owner (e.g. a
// NamedPipe grabbed by each of its servers).
func (t *Table) AddRef(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok {
		atomic.AddInt32(&e.refs, 1)
	}
}

// Close releases one reference on id. When the count reaches zero the
// handle is removed and, if the object implements Destroyer, Destroy runs.
func (t *Table) Close(id uint64) status.Status {
	t.mu.Lock()
	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		return status.InvalidHandle
	}
	remaining := atomic.AddInt32(&e.refs, -1)
	if remaining > 0 {
		t.mu.Unlock()
		return status.Success
	}
	delete(t.entries, id)
	t.mu.Unlock()

	if d, ok := e.obj.(Destroyer); ok {
		d.Destroy()
	}
	return status.Success
}
