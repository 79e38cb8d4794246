package gofat

////////////////////////////////////////////////////////////////////////////////
// Mount flags (spec.md section 6)

// MountFlags controls how a volume is mounted.
type MountFlags int

const (
	// MountFlagsReadOnly forces the volume read-only regardless of what the
	// underlying device would otherwise allow.
	MountFlagsReadOnly = MountFlags(1 << iota)
	// MountFlagsLockDevice requests exclusive access to the device. This is
	// best-effort: hosts that cannot enforce exclusivity may ignore it.
	MountFlagsLockDevice
)

func (flags MountFlags) IsReadOnly() bool {
	return flags&MountFlagsReadOnly != 0
}

func (flags MountFlags) WantsExclusiveDevice() bool {
	return flags&MountFlagsLockDevice != 0
}

// SyncMode controls write-through behavior for data changes.
type SyncMode int

const (
	// SyncModeNever never forces a write-through; dirty blocks are flushed
	// only on fsync/sync/unmount.
	SyncModeNever SyncMode = iota
	// SyncModeIfRemovable forces write-through only when the host reports
	// the device as removable media.
	SyncModeIfRemovable
	// SyncModeAlways forces write-through after every mutating operation.
	SyncModeAlways
)

////////////////////////////////////////////////////////////////////////////////
// Directory-entry attribute byte (spec.md section 3 / 4.4)

// DirAttr is the attribute byte of an on-disk directory entry.
type DirAttr uint8

const (
	AttrReadOnly  DirAttr = 0x01
	AttrHidden    DirAttr = 0x02
	AttrSystem    DirAttr = 0x04
	AttrVolumeID  DirAttr = 0x08
	AttrDirectory DirAttr = 0x10
	AttrArchive   DirAttr = 0x20
	// AttrLongName is the attribute value (not a bit mask) that marks a
	// LongNameSlot fragment of a VFAT LFN chain.
	AttrLongName DirAttr = 0x0F
	// AttrLongNameMask is the set of bits tested against AttrLongName: a
	// slot qualifies as a LongNameSlot when ReadOnly/Hidden/System/VolumeID
	// are all set and Directory/Archive are both clear.
	AttrLongNameMask DirAttr = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID | AttrDirectory | AttrArchive
)

func (a DirAttr) IsLongNameSlot() bool {
	return a&AttrLongNameMask == AttrLongName
}

func (a DirAttr) IsDirectory() bool {
	return a&AttrDirectory != 0
}

func (a DirAttr) IsVolumeLabel() bool {
	return a&AttrVolumeID != 0 && a&AttrDirectory == 0
}
