// Package direngine treats a directory as an append-only array of 32-byte
// slots and implements iteration, lookup, slot allocation, entry
// insertion/removal, compaction, and "."/".." maintenance over it.
package direngine

import (
	"strings"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/clusterio"
	"github.com/dargueta/gofat/direntry"
	fatErrors "github.com/dargueta/gofat/errors"
	"github.com/dargueta/gofat/fattable"
)

// Dir identifies which directory's slot array to operate on.
type Dir struct {
	// StartCluster is the directory's first cluster. Ignored when
	// FixedRoot is true.
	StartCluster gofat.Cluster
	// FixedRoot is true for the FAT12/16 root directory, which occupies a
	// fixed sector range rather than a cluster chain.
	FixedRoot bool
}

// Engine operates on directories within one mounted volume.
type Engine struct {
	Cio *clusterio.ClusterIo
	Fat *fattable.Table

	BytesPerSector    uint32
	SectorsPerCluster uint32

	Codec direntry.NameCodec
}

func (e *Engine) entriesPerCluster() uint32 {
	return (e.SectorsPerCluster * e.BytesPerSector) / direntry.EntrySize
}

// clusterChain returns the ordered list of clusters backing dir. Fixed-root
// directories return nil; callers branch on dir.FixedRoot instead.
func (e *Engine) clusterChain(dir Dir) []gofat.Cluster {
	if dir.FixedRoot {
		return nil
	}
	chain := make([]gofat.Cluster, 0, 4)
	c := dir.StartCluster
	seen := map[gofat.Cluster]bool{}
	for c.IsDataCluster() {
		if seen[c] {
			break
		}
		seen[c] = true
		chain = append(chain, c)
		next, err := e.Fat.Next(c)
		if err != nil {
			break
		}
		c = next
	}
	return chain
}

// Slot is one 32-byte directory entry slot with its index and location
// resolved, so callers can re-read/write it without recomputing geometry.
type Slot struct {
	Index int
	Raw   []byte
}

func (e *Engine) slotCoordinates(dir Dir, index int) (cluster gofat.Cluster, sector uint32, offset uint32, ok bool) {
	entrySize := uint32(direntry.EntrySize)

	if dir.FixedRoot {
		byteOffset := uint32(index) * entrySize
		return clusterio.FixedRootCluster, byteOffset / e.BytesPerSector, byteOffset % e.BytesPerSector, true
	}

	perCluster := e.entriesPerCluster()
	chain := e.clusterChain(dir)
	clusterIdx := uint32(index) / perCluster
	if clusterIdx >= uint32(len(chain)) {
		return 0, 0, 0, false
	}
	withinCluster := uint32(index) % perCluster
	byteOffset := withinCluster * entrySize
	return chain[clusterIdx], byteOffset / e.BytesPerSector, byteOffset % e.BytesPerSector, true
}

// ReadSlot returns a copy of the raw 32-byte slot at index within dir, for
// callers (FatFs) that need to inspect an entry outside of Lookup/Iterate,
// such as rewriting a ".." entry after a directory move.
func (e *Engine) ReadSlot(dir Dir, index int) ([]byte, fatErrors.DriverError) {
	return e.readSlotRaw(dir, index)
}

// WriteSlot overwrites the raw 32-byte slot at index within dir.
func (e *Engine) WriteSlot(dir Dir, index int, raw []byte) fatErrors.DriverError {
	return e.writeSlotRaw(dir, index, raw)
}

// SlotLocation resolves index within dir to the cluster/sector/offset it
// lives at, for callers that need to cache an entry's location (FatFs
// stashes it on Node so size/start-cluster changes can be flushed back
// without repeating a name lookup).
func (e *Engine) SlotLocation(dir Dir, index int) (cluster gofat.Cluster, sector uint32, offset uint32, ok bool) {
	return e.slotCoordinates(dir, index)
}

func (e *Engine) readSlotRaw(dir Dir, index int) ([]byte, fatErrors.DriverError) {
	cluster, sector, offset, ok := e.slotCoordinates(dir, index)
	if !ok {
		return nil, fatErrors.NotFound.WithMessage("slot index past end of directory")
	}
	data, err := e.Cio.ReadSector(cluster, sector)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, direntry.EntrySize)
	copy(raw, data[offset:offset+direntry.EntrySize])
	e.Cio.PutSector(cluster, sector)
	return raw, nil
}

func (e *Engine) writeSlotRaw(dir Dir, index int, raw []byte) fatErrors.DriverError {
	cluster, sector, offset, ok := e.slotCoordinates(dir, index)
	if !ok {
		return fatErrors.NotFound.WithMessage("slot index past end of directory")
	}
	data, err := e.Cio.GetWritableSector(cluster, sector)
	if err != nil {
		return err
	}
	copy(data[offset:offset+direntry.EntrySize], raw)
	e.Cio.PutSector(cluster, sector)
	return nil
}

// capacity returns the total number of slots currently backing dir.
func (e *Engine) capacity(dir Dir, fixedRootSectors uint32) int {
	if dir.FixedRoot {
		return int(fixedRootSectors * e.BytesPerSector / direntry.EntrySize)
	}
	return len(e.clusterChain(dir)) * int(e.entriesPerCluster())
}

// Iterate lazily yields (index, raw-slot) pairs, stopping at the first Free
// slot, per spec.md section 4.5's iterate().
func (e *Engine) Iterate(dir Dir, fixedRootSectors uint32, yield func(index int, raw []byte) bool) fatErrors.DriverError {
	total := e.capacity(dir, fixedRootSectors)
	for i := 0; i < total; i++ {
		raw, err := e.readSlotRaw(dir, i)
		if err != nil {
			return err
		}
		if direntry.ClassifySlot(raw) == direntry.SlotFree {
			return nil
		}
		if !yield(i, raw) {
			return nil
		}
	}
	return nil
}

// LookupResult is what Lookup returns for a matched entry.
type LookupResult struct {
	// ShortEntrySlot is the index of the matched ShortEntry.
	ShortEntrySlot int
	// FirstSlot is the index of the first LongNameSlot in its chain, or
	// equal to ShortEntrySlot if the entry has no (valid) LFN chain.
	FirstSlot int
	Entry     direntry.ShortEntry
	LongName  string
}

// Lookup finds name within dir, reassembling LFN chains as it scans.
// "." and ".." are handled specially by the caller (FatFs/NodeStore), which
// already knows the relevant cluster numbers without needing to search.
func (e *Engine) Lookup(dir Dir, fixedRootSectors uint32, name string) (LookupResult, fatErrors.DriverError) {
	upperTarget := strings.ToUpper(name)

	var pendingLFN []direntry.LongNameSlot
	var pendingFirstSlot int
	result := LookupResult{}
	found := false

	err := e.Iterate(dir, fixedRootSectors, func(index int, raw []byte) bool {
		kind := direntry.ClassifySlot(raw)

		switch kind {
		case direntry.SlotDeleted, direntry.SlotVolumeLabel:
			pendingLFN = nil
			return true

		case direntry.SlotLongName:
			slot := direntry.DecodeLongNameSlot(raw)
			if len(pendingLFN) == 0 {
				if !slot.IsLast {
					return true // out of order; ignore until a chain start
				}
				pendingFirstSlot = index
			} else {
				prev := pendingLFN[len(pendingLFN)-1]
				if slot.Seq != prev.Seq-1 || slot.Checksum != prev.Checksum {
					pendingLFN = nil
					return true
				}
			}
			pendingLFN = append(pendingLFN, slot)
			return true

		case direntry.SlotShortEntry:
			entry := direntry.DecodeShortEntry(raw)

			longName := ""
			chainOK := len(pendingLFN) > 0
			if chainOK {
				checksum := direntry.ShortNameChecksum(entry.Name)
				units := make([]uint16, 0, len(pendingLFN)*13)
				for i := len(pendingLFN) - 1; i >= 0; i-- {
					slot := pendingLFN[i]
					if slot.Checksum != checksum {
						chainOK = false
						break
					}
					units = append(units, slot.Chars[:]...)
				}
				if chainOK {
					longName = direntry.FromUTF16(units)
				}
			}
			pendingLFN = nil

			candidateMatch := strings.ToUpper(shortEntryDisplayName(entry.Name))
			matched := candidateMatch == upperTarget
			if chainOK && strings.ToUpper(longName) == upperTarget {
				matched = true
			}

			if matched {
				found = true
				result = LookupResult{
					ShortEntrySlot: index,
					FirstSlot:      index,
					Entry:          entry,
					LongName:       longName,
				}
				if chainOK {
					result.FirstSlot = pendingFirstSlot
				}
				return false
			}
			return true

		default:
			return true
		}
	})
	if err != nil {
		return LookupResult{}, err
	}
	if !found {
		return LookupResult{}, fatErrors.NotFound.WithMessage("no directory entry named " + name)
	}
	return result, nil
}

// List returns every live (non-deleted, non-label) entry in dir in on-disk
// order, reassembling LFN chains exactly as Lookup does. Used by readdir.
func (e *Engine) List(dir Dir, fixedRootSectors uint32) ([]LookupResult, fatErrors.DriverError) {
	var out []LookupResult
	var pendingLFN []direntry.LongNameSlot
	var pendingFirstSlot int

	err := e.Iterate(dir, fixedRootSectors, func(index int, raw []byte) bool {
		kind := direntry.ClassifySlot(raw)

		switch kind {
		case direntry.SlotDeleted, direntry.SlotVolumeLabel:
			pendingLFN = nil
			return true

		case direntry.SlotLongName:
			slot := direntry.DecodeLongNameSlot(raw)
			if len(pendingLFN) == 0 {
				if !slot.IsLast {
					return true
				}
				pendingFirstSlot = index
			} else {
				prev := pendingLFN[len(pendingLFN)-1]
				if slot.Seq != prev.Seq-1 || slot.Checksum != prev.Checksum {
					pendingLFN = nil
					return true
				}
			}
			pendingLFN = append(pendingLFN, slot)
			return true

		case direntry.SlotShortEntry:
			entry := direntry.DecodeShortEntry(raw)

			longName := ""
			chainOK := len(pendingLFN) > 0
			if chainOK {
				checksum := direntry.ShortNameChecksum(entry.Name)
				units := make([]uint16, 0, len(pendingLFN)*13)
				for i := len(pendingLFN) - 1; i >= 0; i-- {
					slot := pendingLFN[i]
					if slot.Checksum != checksum {
						chainOK = false
						break
					}
					units = append(units, slot.Chars[:]...)
				}
				if chainOK {
					longName = direntry.FromUTF16(units)
				}
			}
			pendingLFN = nil

			result := LookupResult{
				ShortEntrySlot: index,
				FirstSlot:      index,
				Entry:          entry,
				LongName:       longName,
			}
			if chainOK {
				result.FirstSlot = pendingFirstSlot
			}
			out = append(out, result)
			return true

		default:
			return true
		}
	})
	return out, err
}

// DisplayName returns result's best name: the reassembled long name if its
// LFN chain checksum matched, otherwise the 8.3 short name.
func (result LookupResult) DisplayName() string {
	if result.LongName != "" {
		return result.LongName
	}
	return shortEntryDisplayName(result.Entry.Name)
}

func shortEntryDisplayName(raw [11]byte) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// IsEmpty reports whether dir contains only "." and ".." before the first
// Free slot.
func (e *Engine) IsEmpty(dir Dir, fixedRootSectors uint32) (bool, fatErrors.DriverError) {
	empty := true
	err := e.Iterate(dir, fixedRootSectors, func(index int, raw []byte) bool {
		kind := direntry.ClassifySlot(raw)
		if kind != direntry.SlotShortEntry {
			return true
		}
		entry := direntry.DecodeShortEntry(raw)
		name := shortEntryDisplayName(entry.Name)
		if name != "." && name != ".." {
			empty = false
			return false
		}
		return true
	})
	return empty, err
}
