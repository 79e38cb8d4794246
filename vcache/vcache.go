// Package vcache maps stable inode numbers to their current on-disk
// directory-entry location (and back), across renames and truncations that
// change the encoding, per spec.md section 4.7.
package vcache

import (
	"sync"

	"github.com/dargueta/gofat"
)

// Location is the (cluster, offset) coordinate an inode currently resolves
// to. For a natural encoding this is simply the Ino's own bit pattern
// reinterpreted; for an artificial inode it has no on-disk meaning and
// exists only as a hash key.
type Location = gofat.Ino

const defaultBucketCount = 512

type entry struct {
	inode       gofat.Ino
	location    Location
	constructed bool
}

// Cache is a double-hashed (by inode, by location) bimap with power-of-two
// bucket counts, guarded by a single rwlock per spec.md section 4.7.
type Cache struct {
	mu sync.RWMutex

	byInode    [][]*entry
	byLocation [][]*entry
	size       uint64

	nextArtificial uint64
}

// New builds a Cache with the default 512-bucket hash tables.
func New() *Cache {
	return NewSized(defaultBucketCount)
}

// NewSized builds a Cache with a caller-chosen power-of-two bucket count.
func NewSized(size uint64) *Cache {
	if size == 0 || size&(size-1) != 0 {
		size = defaultBucketCount
	}
	return &Cache{
		byInode:    make([][]*entry, size),
		byLocation: make([][]*entry, size),
		size:       size,
	}
}

func (c *Cache) inodeBucket(i gofat.Ino) uint64 {
	return uint64(i) & (c.size - 1)
}

func (c *Cache) locationBucket(l Location) uint64 {
	return uint64(l) & (c.size - 1)
}

// findByInode returns the entry for inode, or nil. Callers hold a read or
// write lock.
func (c *Cache) findByInode(i gofat.Ino) *entry {
	bucket := c.byInode[c.inodeBucket(i)]
	for _, e := range bucket {
		if e.inode == i {
			return e
		}
		if e.inode > i {
			break // buckets are kept sorted by key
		}
	}
	return nil
}

func (c *Cache) findByLocation(l Location) *entry {
	bucket := c.byLocation[c.locationBucket(l)]
	for _, e := range bucket {
		if e.location == l {
			return e
		}
		if e.location > l {
			break
		}
	}
	return nil
}

func insertSorted(bucket []*entry, e *entry, key func(*entry) uint64) []*entry {
	k := key(e)
	i := 0
	for i < len(bucket) && key(bucket[i]) < k {
		i++
	}
	bucket = append(bucket, nil)
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = e
	return bucket
}

func removeFromBucket(bucket []*entry, e *entry) []*entry {
	for i, cand := range bucket {
		if cand == e {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}
	return bucket
}

// AssignInode installs (or finds) the entry for location, returning the
// natural-encoding inode. If a different inode is already mapped to this
// location, that inode is returned unchanged (defensive; should not happen
// under correct DirEngine use).
func (c *Cache) AssignInode(location Location) gofat.Ino {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing := c.findByLocation(location); existing != nil {
		return existing.inode
	}

	e := &entry{inode: gofat.Ino(location), location: location}
	c.insert(e)
	return e.inode
}

func (c *Cache) insert(e *entry) {
	ib := c.inodeBucket(e.inode)
	lb := c.locationBucket(e.location)
	c.byInode[ib] = insertSorted(c.byInode[ib], e, func(x *entry) uint64 { return uint64(x.inode) })
	c.byLocation[lb] = insertSorted(c.byLocation[lb], e, func(x *entry) uint64 { return uint64(x.location) })
}

// SetLocation moves inode's entry to newLocation. Called after rename, or
// after a truncation that crosses the zero-byte/non-empty boundary (the two
// cases use different natural bit layouts, per ino.go).
func (c *Cache) SetLocation(inode gofat.Ino, newLocation Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.findByInode(inode)
	if e == nil {
		e = &entry{inode: inode}
		c.insert(e)
	} else {
		lb := c.locationBucket(e.location)
		c.byLocation[lb] = removeFromBucket(c.byLocation[lb], e)
	}
	e.location = newLocation
	lb := c.locationBucket(newLocation)
	c.byLocation[lb] = insertSorted(c.byLocation[lb], e, func(x *entry) uint64 { return uint64(x.location) })
}

// MarkConstructed records whether the Node backing inode has finished (or
// is no longer) constructed, letting the host VFS adaptor avoid redundant
// read_vnode races.
func (c *Cache) MarkConstructed(inode gofat.Ino, constructed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.findByInode(inode); e != nil {
		e.constructed = constructed
	}
}

// IsConstructed reports whether inode currently has a live, constructed
// Node. A missing entry reports false.
func (c *Cache) IsConstructed(inode gofat.Ino) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.findByInode(inode)
	return e != nil && e.constructed
}

// NewArtificial atomically returns the next artificial-space inode, for use
// when a natural location is already occupied (e.g. the surviving "ghost"
// inode after a rename clobbers an existing target).
func (c *Cache) NewArtificial() gofat.Ino {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextArtificial
	c.nextArtificial++
	ino := gofat.NewArtificialIno(id)
	c.insert(&entry{inode: ino, location: Location(ino)})
	return ino
}

// Remove drops inode's entry entirely, once its Node has been released and
// its on-disk slot is gone for good.
func (c *Cache) Remove(inode gofat.Ino) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.findByInode(inode)
	if e == nil {
		return
	}
	ib := c.inodeBucket(e.inode)
	lb := c.locationBucket(e.location)
	c.byInode[ib] = removeFromBucket(c.byInode[ib], e)
	c.byLocation[lb] = removeFromBucket(c.byLocation[lb], e)
}

// Lookup returns the location currently mapped to inode, if any.
func (c *Cache) Lookup(inode gofat.Ino) (Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.findByInode(inode)
	if e == nil {
		return 0, false
	}
	return e.location, true
}
