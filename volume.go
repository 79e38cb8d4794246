package gofat

import (
	"sync"

	fatErrors "github.com/dargueta/gofat/errors"
)

// Volume holds everything known about a single mounted FAT filesystem.
// Fields documented "immutable after mount" are set once by Mount and never
// changed for the lifetime of the mount; everything else requires the
// locking discipline in lockdiscipline.go.
type Volume struct {
	// --- immutable after mount ---

	Type FatType

	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	// RootDirEntries is the fixed root-directory capacity on FAT12/16; 0 on
	// FAT32, where the root is an ordinary cluster chain.
	RootDirEntries uint16
	TotalSectors   uint32
	MediaDescriptor uint8
	// FATSizeSectors is the size, in sectors, of a single FAT copy.
	FATSizeSectors uint32
	// ActiveFAT is the index of the FAT copy treated as authoritative when
	// Mirror is false (FAT32 "single active FAT" mode).
	ActiveFAT uint8
	Mirror    bool
	// RootDirStart is a cluster number on FAT32, or the first sector of the
	// fixed root-directory range on FAT12/16.
	RootDirStart uint32
	// FSInfoSector is the sector number of the FAT32 fsinfo structure, or 0
	// if this volume has none (FAT12/16).
	FSInfoSector uint16
	FirstDataSector uint32
	MaxCluster      uint32

	BlockCache BlockCache
	FileCache  FileCache
	VFS        VFSCallbacks
	ClockSrc   Clock

	MountOpts MountOptions

	// --- mutable, guarded as documented in lockdiscipline.go ---

	FreeClusters uint32
	NextFreeHint Cluster
	ReadOnly     bool
	Label        string

	// Mutex is a recursive volume-wide mutex: mount/unmount, rename (whole
	// op), FAT-free-count updates not already serialized some other way,
	// and label rewrites all hold it.
	Mutex *RecursiveMutex
	// FatLock guards FAT reads/writes independently of per-node locks.
	FatLock sync.RWMutex
	// CheckpathLock serializes the directory-loop check performed during
	// rename.
	CheckpathLock sync.RWMutex
}

// MountOptions is the mount-time configuration struct, mirroring the
// teacher's MountFlags-plus-constructor-parameters convention (there is no
// config-file layer; everything is plain Go values passed to Mount).
type MountOptions struct {
	Flags MountFlags
	Sync  SyncMode
	// OEMCodePage selects the bidirectional OEM<->Unicode table NameCodec
	// uses. Defaults to a CP1252-equivalent table if empty.
	OEMCodePage string
}

// MarkReadOnly forces the volume read-only for the remainder of the mount,
// per spec.md section 7's corruption-triggered remount-readonly trampoline.
// Callers must already hold Volume.Mutex.
func (v *Volume) MarkReadOnly() {
	v.ReadOnly = true
}

// CheckWritable returns ErrReadOnly if the volume is not currently
// accepting writes.
func (v *Volume) CheckWritable() fatErrors.DriverError {
	if v.ReadOnly || v.MountOpts.Flags.IsReadOnly() {
		return fatErrors.ReadOnly.WithMessage("volume is read-only")
	}
	return nil
}

// BytesPerCluster is SectorsPerCluster * BytesPerSector, the unit of
// allocation.
func (v *Volume) BytesPerCluster() uint32 {
	return uint32(v.SectorsPerCluster) * uint32(v.BytesPerSector)
}

// RootDirSectors is the number of sectors the fixed FAT12/16 root directory
// occupies; 0 on FAT32.
func (v *Volume) RootDirSectors() uint32 {
	if v.Type == Fat32 {
		return 0
	}
	bytes := uint32(v.RootDirEntries) * 32
	return (bytes + uint32(v.BytesPerSector) - 1) / uint32(v.BytesPerSector)
}
