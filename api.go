package gofat

import (
	"time"
)

// LBA is a zero-based logical block (sector) address, as used by the host
// block cache.
type LBA uint64

////////////////////////////////////////////////////////////////////////////////
// Host block cache (spec.md section 6, "Block cache API")

// BlockCache is the host-provided write-back cache keyed by 512-byte (or
// whatever bytesPerSector negotiated at Create) sector number. The core
// never touches the device directly; every on-disk read or write goes
// through this interface via clusterio.
type BlockCache interface {
	// Get returns a read-only view of the sector at lba. The returned slice
	// must not be retained past the matching Put.
	Get(lba LBA) ([]byte, error)
	// GetWritable returns a mutable view of the sector at lba, marking it
	// dirty for the next Sync. Must be matched by Put on every exit path,
	// including error paths.
	GetWritable(lba LBA) ([]byte, error)
	// Put releases a reference obtained from Get or GetWritable.
	Put(lba LBA)
	// SetDirty explicitly marks or clears the dirty bit for lba without
	// requiring a GetWritable/Put pair.
	SetDirty(lba LBA, dirty bool) error
	// Sync flushes every dirty sector to the device.
	Sync() error
	// SyncRange flushes count dirty sectors starting at lba.
	SyncRange(lba LBA, count uint) error
	// Discard tells the cache the given range no longer holds meaningful
	// data (e.g. clusters just freed); implementations may drop cached
	// copies without writing them back.
	Discard(lba LBA, count uint) error
}

////////////////////////////////////////////////////////////////////////////////
// Host file-data cache (spec.md section 6, "File cache API")

// FileCookie identifies an open file-cache handle's caller-side session;
// opaque to the core.
type FileCookie uint64

// FileHandle is the host's identifier for a file cache entry, obtained from
// FileCache.Create.
type FileHandle interface{}

// FileCache is the host-provided write-back cache keyed by (file-id,
// offset). NodeStore and FatFs delegate all file-content I/O to it once a
// node's file map is available.
type FileCache interface {
	Create(ino Ino, size int64) (FileHandle, error)
	SetSize(handle FileHandle, size int64) error
	Read(handle FileHandle, cookie FileCookie, pos int64, buf []byte) (n int, err error)
	Write(handle FileHandle, cookie FileCookie, pos int64, buf []byte) (n int, err error)
	Sync(handle FileHandle) error
	Delete(handle FileHandle) error
	Disable(handle FileHandle) error
	Enable(handle FileHandle) error
	// FileMapTranslate resolves a byte range of the file to device-LBA
	// extents, used by the page-fault hooks that back Read/Write.
	FileMapTranslate(handle FileHandle, offset int64, size int64, clusterSize int64) ([]Extent, error)
}

// Extent is a contiguous run of logical blocks backing part of a file.
type Extent struct {
	StartLBA LBA
	Count    uint
}

////////////////////////////////////////////////////////////////////////////////
// VFS callbacks invoked on the driver (spec.md section 6)

// VFSCallbacks is the subset of host VFS entry points the core calls back
// into, mirroring Haiku's kernel_interface get_vnode/put_vnode family.
type VFSCallbacks interface {
	GetVnode(vol *Volume, ino Ino) (*Node, error)
	PutVnode(vol *Volume, ino Ino) error
	PublishVnode(vol *Volume, ino Ino, node *Node) error
	RemoveVnode(vol *Volume, ino Ino) error
	AcquireVnode(vol *Volume, ino Ino) error

	NotifyEntryCreated(vol *Volume, parent Ino, name string, ino Ino)
	NotifyEntryRemoved(vol *Volume, parent Ino, name string, ino Ino)
	NotifyEntryMoved(vol *Volume, oldParent Ino, oldName string, newParent Ino, newName string, ino Ino)
	NotifyStatChanged(vol *Volume, ino Ino)
	NotifyAttributeChanged(vol *Volume, ino Ino)

	EntryCacheAdd(vol *Volume, parent Ino, name string, ino Ino)
	EntryCacheRemove(vol *Volume, parent Ino, name string)
	EntryCacheAddMissing(vol *Volume, parent Ino, name string)
}

// Clock is the host-provided time source: a monotonic microsecond clock
// plus a timezone offset, per spec.md section 6. The driver writes local-
// time timestamps to disk; GMT conversion at the VFS boundary is the host's
// responsibility.
type Clock interface {
	NowLocal() time.Time
}

////////////////////////////////////////////////////////////////////////////////
// Stat structures surfaced to the host

// FileStat is the platform-independent stat information for a single node.
type FileStat struct {
	Ino          Ino
	IsDirectory  bool
	Size         int64
	Attr         DirAttr
	CreatedAt    time.Time
	LastAccessed time.Time
	LastModified time.Time
	LastChanged  time.Time
}

// FSStat describes the volume as a whole, analogous to syscall.Statfs_t.
type FSStat struct {
	BlockSize     int64
	TotalBlocks   uint64
	BlocksFree    uint64
	Files         uint64
	FilesFree     uint64
	FileSystemID  uint64
	MaxNameLength int64
	Label         string
}

// FSFeatures reports which optional behaviors this mount supports. FAT12
// and FAT16 lack a few things FAT32 has (notably a dynamically-sized root
// directory), so the answers are per-volume rather than constant. FatFs
// does not implement this interface.
type FSFeatures interface {
	HasDirectories() bool
	HasLongNames() bool
	FixedSizeRootDirectory() bool
	DefaultNameEncoding() string
}
