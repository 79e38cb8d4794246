package direngine

import (
	"strings"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/direntry"
	fatErrors "github.com/dargueta/gofat/errors"
)

// AllocateSlots finds k consecutive Free-or-Deleted entries in increasing
// slot order, extending the chain by one zeroed cluster and retrying if
// none exist (fixed-root directories return NoSpace instead, since their
// capacity cannot grow).
func (e *Engine) AllocateSlots(dir Dir, fixedRootSectors uint32, k int, hint gofat.Cluster) (firstSlot int, newDir Dir, err fatErrors.DriverError) {
	for {
		total := e.capacity(dir, fixedRootSectors)
		run := 0
		runStart := -1

		for i := 0; i < total; i++ {
			raw, rerr := e.readSlotRaw(dir, i)
			if rerr != nil {
				return 0, dir, rerr
			}
			kind := direntry.ClassifySlot(raw)
			if kind == direntry.SlotFree || kind == direntry.SlotDeleted {
				if run == 0 {
					runStart = i
				}
				run++
				if run == k {
					return runStart, dir, nil
				}
			} else {
				run = 0
			}
			if kind == direntry.SlotFree {
				// Free marks the end of meaningful entries; anything past
				// it is also free, so the run can keep extending through
				// the rest of the allocated capacity without re-reading.
				remaining := total - i - 1
				if run+remaining >= k && runStart >= 0 {
					return runStart, dir, nil
				}
			}
		}

		if dir.FixedRoot {
			return 0, dir, fatErrors.NoSpace.WithMessage("fixed root directory is full")
		}

		newStart, _, _, aerr := e.Fat.TruncateOrExtend(dir.StartCluster, uint32(len(e.clusterChain(dir)))+1, hint)
		if aerr != nil {
			return 0, dir, aerr
		}
		if err := e.zeroNewTailCluster(newStart); err != nil {
			return 0, dir, err
		}
		dir.StartCluster = newStart
	}
}

func (e *Engine) zeroNewTailCluster(start gofat.Cluster) fatErrors.DriverError {
	chain := e.clusterChain(Dir{StartCluster: start})
	if len(chain) == 0 {
		return nil
	}
	last := chain[len(chain)-1]
	zero := make([]byte, e.BytesPerSector)
	for s := uint32(0); s < e.SectorsPerCluster; s++ {
		if err := e.Cio.WriteSector(last, s, zero); err != nil {
			return err
		}
	}
	return nil
}

// EntryMeta carries the fields Insert writes into the new ShortEntry.
type EntryMeta struct {
	Attr         gofat.DirAttr
	StartCluster gofat.Cluster
	Size         uint32
	CreateDate   uint16
	CreateTime   uint16
	CreateTenths uint8
	WriteDate    uint16
	WriteTime    uint16
	AccessDate   uint16
}

// Insert computes the short name via NameCodec.LongToShort, writes the
// required LFN chain in reverse order followed by the ShortEntry, and
// returns the slot range used.
func (e *Engine) Insert(dir Dir, fixedRootSectors uint32, name string, meta EntryMeta, hint gofat.Cluster) (firstSlot, lastSlot int, newDir Dir, err fatErrors.DriverError) {
	existing := map[[11]byte]bool{}
	scanErr := e.Iterate(dir, fixedRootSectors, func(_ int, raw []byte) bool {
		if direntry.ClassifySlot(raw) == direntry.SlotShortEntry {
			entry := direntry.DecodeShortEntry(raw)
			existing[entry.Name] = true
		}
		return true
	})
	if scanErr != nil {
		return 0, 0, dir, scanErr
	}

	shortName, nerr := e.Codec.LongToShort(name, func(raw [11]byte) bool { return existing[raw] })
	if nerr != nil {
		return 0, 0, dir, nerr
	}

	units := ToUTF16IfNeeded(name, shortName)
	fragments := direntry.EncodeNameFragments(units)
	k := 0
	if len(units) > 0 {
		k = len(fragments)
	}

	first, dir2, aerr := e.AllocateSlots(dir, fixedRootSectors, k+1, hint)
	if aerr != nil {
		return 0, 0, dir, aerr
	}

	checksum := direntry.ShortNameChecksum(shortName)
	for i := 0; i < k; i++ {
		fragIdx := k - 1 - i
		slot := direntry.LongNameSlot{
			Seq:      uint8(fragIdx + 1),
			IsLast:   fragIdx == k-1,
			Checksum: checksum,
			Chars:    fragments[fragIdx],
		}
		if werr := e.writeSlotRaw(dir2, first+i, slot.Encode()); werr != nil {
			return 0, 0, dir2, werr
		}
	}

	entry := direntry.ShortEntry{
		Name:           shortName,
		Attr:           meta.Attr,
		CreateTenths:   meta.CreateTenths,
		CreateTime:     meta.CreateTime,
		CreateDate:     meta.CreateDate,
		LastAccessDate: meta.AccessDate,
		WriteTime:      meta.WriteTime,
		WriteDate:      meta.WriteDate,
		FileSize:       meta.Size,
	}
	entry.SetStartCluster(meta.StartCluster)

	shortEntrySlot := first + k
	if werr := e.writeSlotRaw(dir2, shortEntrySlot, entry.Encode()); werr != nil {
		return 0, 0, dir2, werr
	}

	return first, shortEntrySlot, dir2, nil
}

// ToUTF16IfNeeded returns the UTF-16 units for name, or nil if the short
// name is an exact (case-insensitive) rendering of name and no LFN chain
// is needed.
func ToUTF16IfNeeded(name string, shortName [11]byte) []uint16 {
	display := shortEntryDisplayName(shortName)
	if strings.EqualFold(display, name) {
		return nil
	}
	return toUTF16(name)
}

// Remove walks backward from a ShortEntry slot, marking it and every
// contiguous preceding LongNameSlot that belongs to its chain as Deleted.
func (e *Engine) Remove(dir Dir, fixedRootSectors uint32, shortEntrySlot int) fatErrors.DriverError {
	raw, err := e.readSlotRaw(dir, shortEntrySlot)
	if err != nil {
		return err
	}
	if direntry.ClassifySlot(raw) != direntry.SlotShortEntry {
		return fatErrors.InvalidArg.WithMessage("Remove called on a non-ShortEntry slot")
	}
	entry := direntry.DecodeShortEntry(raw)
	checksum := direntry.ShortNameChecksum(entry.Name)

	if derr := e.markDeleted(dir, shortEntrySlot); derr != nil {
		return derr
	}

	expectedSeq := uint8(1)
	for i := shortEntrySlot - 1; i >= 0; i-- {
		prevRaw, rerr := e.readSlotRaw(dir, i)
		if rerr != nil {
			break
		}
		if direntry.ClassifySlot(prevRaw) != direntry.SlotLongName {
			break
		}
		slot := direntry.DecodeLongNameSlot(prevRaw)
		if slot.Checksum != checksum || slot.Seq != expectedSeq {
			break
		}
		if derr := e.markDeleted(dir, i); derr != nil {
			return derr
		}
		expectedSeq++
	}
	return nil
}

func (e *Engine) markDeleted(dir Dir, index int) fatErrors.DriverError {
	raw, err := e.readSlotRaw(dir, index)
	if err != nil {
		return err
	}
	raw[0] = 0xE5
	return e.writeSlotRaw(dir, index, raw)
}

// Compact drops a trailing all-free cluster (other than the directory's
// first) when one exists. Non-critical: callers should log, not propagate,
// any error this returns.
func (e *Engine) Compact(dir Dir) fatErrors.DriverError {
	if dir.FixedRoot {
		return nil
	}
	chain := e.clusterChain(dir)
	if len(chain) <= 1 {
		return nil
	}

	last := chain[len(chain)-1]
	allFree := true
	for s := uint32(0); s < e.SectorsPerCluster && allFree; s++ {
		data, err := e.Cio.ReadSector(last, s)
		if err != nil {
			return err
		}
		for off := uint32(0); off < e.BytesPerSector; off += direntry.EntrySize {
			if direntry.ClassifySlot(data[off:off+direntry.EntrySize]) != direntry.SlotFree {
				allFree = false
				break
			}
		}
		e.Cio.PutSector(last, s)
	}
	if !allFree {
		return nil
	}

	_, _, _, err := e.Fat.TruncateOrExtend(dir.StartCluster, uint32(len(chain)-1), 0)
	return err
}

// MakeEmptyDir writes "." and ".." short entries at slots 0 and 1 of
// newCluster, zeroing the rest. The ".." entry's start cluster is 0 when
// the parent is the root, even on FAT32 where the root has a real cluster
// (a deliberate spec quirk preserved here).
func (e *Engine) MakeEmptyDir(newCluster, parentCluster gofat.Cluster, parentIsRoot bool, meta EntryMeta) fatErrors.DriverError {
	zero := make([]byte, e.BytesPerSector)
	for s := uint32(0); s < e.SectorsPerCluster; s++ {
		if err := e.Cio.WriteSector(newCluster, s, zero); err != nil {
			return err
		}
	}

	dir := Dir{StartCluster: newCluster}

	dotEntry := direntry.ShortEntry{
		Name: mustPackShort("."),
		Attr: gofat.AttrDirectory,
	}
	dotEntry.CreateDate, dotEntry.CreateTime, dotEntry.CreateTenths = meta.CreateDate, meta.CreateTime, meta.CreateTenths
	dotEntry.WriteDate, dotEntry.WriteTime = meta.WriteDate, meta.WriteTime
	dotEntry.SetStartCluster(newCluster)

	dotDotEntry := direntry.ShortEntry{
		Name: mustPackShort(".."),
		Attr: gofat.AttrDirectory,
	}
	dotDotEntry.CreateDate, dotDotEntry.CreateTime, dotDotEntry.CreateTenths = meta.CreateDate, meta.CreateTime, meta.CreateTenths
	dotDotEntry.WriteDate, dotDotEntry.WriteTime = meta.WriteDate, meta.WriteTime
	if parentIsRoot {
		dotDotEntry.SetStartCluster(gofat.ClusterFree)
	} else {
		dotDotEntry.SetStartCluster(parentCluster)
	}

	if err := e.writeSlotRaw(dir, 0, dotEntry.Encode()); err != nil {
		return err
	}
	return e.writeSlotRaw(dir, 1, dotDotEntry.Encode())
}

func mustPackShort(s string) [11]byte {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	copy(raw[:], s)
	return raw
}

func toUTF16(name string) []uint16 {
	codec := direntry.NameCodec{}
	_ = codec
	return direntry.ToUTF16(name)
}

// CreateLabel writes a single VolumeLabel entry in the root directory. If a
// VolumeLabel entry already exists it is rewritten in place; otherwise one
// free slot is allocated for it.
func (e *Engine) CreateLabel(root Dir, fixedRootSectors uint32, label string) fatErrors.DriverError {
	slot, existingLabelSlot, err := e.findLabelSlotOrFree(root, fixedRootSectors)
	if err != nil {
		return err
	}
	if existingLabelSlot {
		return e.writeLabel(root, slot, label)
	}

	firstSlot, _, aerr := e.AllocateSlots(root, fixedRootSectors, 1, 0)
	if aerr != nil {
		return aerr
	}
	return e.writeLabel(root, firstSlot, label)
}

// UpdateLabelEntry rewrites the existing VolumeLabel entry's name, or
// creates one if none exists.
func (e *Engine) UpdateLabelEntry(root Dir, fixedRootSectors uint32, label string) fatErrors.DriverError {
	return e.CreateLabel(root, fixedRootSectors, label)
}

func (e *Engine) findLabelSlotOrFree(root Dir, fixedRootSectors uint32) (slot int, found bool, err fatErrors.DriverError) {
	ferr := e.Iterate(root, fixedRootSectors, func(index int, raw []byte) bool {
		if direntry.ClassifySlot(raw) == direntry.SlotVolumeLabel {
			slot, found = index, true
			return false
		}
		return true
	})
	return slot, found, ferr
}

func (e *Engine) writeLabel(root Dir, slot int, label string) fatErrors.DriverError {
	name := mustPackShort(label)
	entry := direntry.ShortEntry{Name: name, Attr: gofat.AttrVolumeID}
	return e.writeSlotRaw(root, slot, entry.Encode())
}
