package gofat

import "time"

// Node is the in-memory state for a currently-referenced file or directory.
// One instance exists per constructed vnode; VCache maps stable inode
// numbers to the Node's current on-disk location.
type Node struct {
	Inode Ino

	// ParentInode is resolved lazily: for directories, "." is known at
	// construction but ".." is only looked up the first time something
	// other than construction needs it (spec.md section 9: parent links
	// are not materialized as strong pointers, only as inode numbers
	// resolved through VCache + GetVnode on demand).
	ParentInode Ino

	StartCluster Cluster
	// EndCluster caches the tail of the chain so repeated appends don't
	// re-walk from StartCluster every time. ClusterUnknown means it hasn't
	// been computed yet.
	EndCluster Cluster

	Attr DirAttr
	Size int64

	CreatedAt    time.Time
	LastAccessed time.Time
	LastModified time.Time
	LastChanged  time.Time

	// FileCacheHandle is non-nil for regular files once a handle has been
	// obtained from the host file cache.
	FileCacheHandle FileHandle

	Lock *RecursiveRWLock

	// Resizing is set transiently during NodeStore.Truncate's FAT-extend
	// step to suppress file-cache writes into the not-yet-zeroed tail
	// region (spec.md section 5, "the file-cache deadlock").
	Resizing bool

	// MIME is optional, regular-files-only metadata; never decoded from
	// the on-disk format (there is none) and is host/sidecar-supplied.
	MIME string

	// Removed marks a node whose directory entry has already been deleted
	// (unlink/rmdir) but which is still referenced. The host's RemoveVnode
	// sets it; nothing frees the node's chain when the last reference goes.
	Removed bool

	// DirCluster/DirFixedRoot/DirSlot locate this node's own 32-byte short
	// entry within its parent directory, so FatFs can flush a size or
	// start-cluster change back to disk without repeating the name lookup
	// that originally found it. DirSlot is -1 for nodes with no backing
	// entry (the volume root).
	DirCluster   Cluster
	DirFixedRoot bool
	DirSlot      int
	DirName      [11]byte
	DirCaseFlags uint8
}

// NoDirSlot is the DirSlot value for a Node with no backing directory
// entry, such as the volume root.
const NoDirSlot = -1

// ClusterUnknown is the EndCluster sentinel meaning "tail not yet computed".
const ClusterUnknown Cluster = ClusterEOF - 1

func (n *Node) IsDirectory() bool {
	return n.Attr.IsDirectory()
}

// IsEmpty reports whether the file currently occupies zero clusters.
func (n *Node) IsEmpty() bool {
	return n.StartCluster == ClusterFree
}
