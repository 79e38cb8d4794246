// Package hostbridge wires gofat.FatFs to a concrete host: a VFSCallbacks
// implementation that keeps constructed Nodes in memory, and (on linux) a
// bazil.org/fuse adaptor that turns FUSE requests into FatFs calls.
package hostbridge

import (
	"log"
	"sync"
	"time"

	"github.com/dargueta/gofat"
)

// VnodeTable is a reference gofat.VFSCallbacks: a reference-counted map of
// constructed Nodes, playing the role Haiku's vnode cache plays for the
// teacher's own host integrations. Real VFS layers (FUSE, a kernel module)
// have their own vnode cache and would normally implement this interface
// directly instead of delegating to a second one, but tests need something
// that behaves like one without a kernel underneath.
type VnodeTable struct {
	mu    sync.Mutex
	nodes map[gofat.Ino]*vnodeEntry
}

type vnodeEntry struct {
	node    *gofat.Node
	refs    int
	removed bool
}

// NewVnodeTable builds an empty VnodeTable.
func NewVnodeTable() *VnodeTable {
	return &VnodeTable{nodes: make(map[gofat.Ino]*vnodeEntry)}
}

func (t *VnodeTable) GetVnode(vol *gofat.Volume, ino gofat.Ino) (*gofat.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.nodes[ino]
	if !ok {
		return nil, gofat.ErrNotFound.WithMessage("no constructed vnode for this inode")
	}
	e.refs++
	return e.node, nil
}

func (t *VnodeTable) PutVnode(vol *gofat.Volume, ino gofat.Ino) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.nodes[ino]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs <= 0 && e.removed {
		delete(t.nodes, ino)
	}
	return nil
}

func (t *VnodeTable) PublishVnode(vol *gofat.Volume, ino gofat.Ino, node *gofat.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[ino] = &vnodeEntry{node: node, refs: 1}
	return nil
}

func (t *VnodeTable) RemoveVnode(vol *gofat.Volume, ino gofat.Ino) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.nodes[ino]
	if !ok {
		return nil
	}
	e.removed = true
	e.node.Removed = true
	if e.refs <= 0 {
		delete(t.nodes, ino)
	}
	return nil
}

func (t *VnodeTable) AcquireVnode(vol *gofat.Volume, ino gofat.Ino) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.nodes[ino]
	if !ok {
		return gofat.ErrNotFound.WithMessage("no constructed vnode for this inode")
	}
	e.refs++
	return nil
}

// Lookup returns the node currently published for ino, if any, without
// adjusting its reference count.
func (t *VnodeTable) Lookup(ino gofat.Ino) (*gofat.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.nodes[ino]
	if !ok {
		return nil, false
	}
	return e.node, true
}

func (t *VnodeTable) NotifyEntryCreated(vol *gofat.Volume, parent gofat.Ino, name string, ino gofat.Ino) {
}

func (t *VnodeTable) NotifyEntryRemoved(vol *gofat.Volume, parent gofat.Ino, name string, ino gofat.Ino) {
}

func (t *VnodeTable) NotifyEntryMoved(vol *gofat.Volume, oldParent gofat.Ino, oldName string, newParent gofat.Ino, newName string, ino gofat.Ino) {
}

func (t *VnodeTable) NotifyStatChanged(vol *gofat.Volume, ino gofat.Ino) {}

func (t *VnodeTable) NotifyAttributeChanged(vol *gofat.Volume, ino gofat.Ino) {}

// EntryCacheAdd/EntryCacheRemove/EntryCacheAddMissing back an optional
// name-lookup cache. This reference implementation has none yet; a real one
// would consult it from Lookup before walking the directory, so these are
// logged rather than silently ignored.
func (t *VnodeTable) EntryCacheAdd(vol *gofat.Volume, parent gofat.Ino, name string, ino gofat.Ino) {
	log.Printf("hostbridge: EntryCacheAdd(%d, %q, %d) - no entry cache wired up", parent, name, ino)
}

func (t *VnodeTable) EntryCacheRemove(vol *gofat.Volume, parent gofat.Ino, name string) {
	log.Printf("hostbridge: EntryCacheRemove(%d, %q) - no entry cache wired up", parent, name)
}

func (t *VnodeTable) EntryCacheAddMissing(vol *gofat.Volume, parent gofat.Ino, name string) {
	log.Printf("hostbridge: EntryCacheAddMissing(%d, %q) - no entry cache wired up", parent, name)
}

// SystemClock is a trivial gofat.Clock backed by the local wall clock.
type SystemClock struct{}

func (SystemClock) NowLocal() time.Time { return time.Now().Local() }
