// Package fattable implements the packed 12/16/28-bit FAT cluster-chain
// store: entry decode/encode, chain allocation, truncation, and a
// bitmap-accelerated free-cluster scan mirrored alongside the on-disk FAT.
package fattable

import (
	"log"

	"github.com/boljen/go-bitmap"

	"github.com/dargueta/gofat"
	fatErrors "github.com/dargueta/gofat/errors"
)

// Table is a packed FAT chain store bound to one mounted volume's block
// cache. Next/Set dispatch once on Type at construction time via the
// read/write function fields rather than branching on every call (spec.md
// section 9, "dynamic dispatch on FAT width").
type Table struct {
	Type              gofat.FatType
	BytesPerSector    uint32
	FATSizeSectors    uint32
	ReservedSectors   uint32
	NumFATs           uint8
	ActiveFAT         uint8
	Mirror            bool
	MaxCluster        uint32

	Cache gofat.BlockCache

	// FreeBitmap mirrors which clusters in [2, MaxCluster] are free, so
	// AllocateChain's first-fit scan can skip allocated runs without
	// decoding FAT entries one at a time. Rebuilt by RecountFree.
	FreeBitmap bitmap.Bitmap
	FreeCount  uint32
	NextFree   gofat.Cluster

	read  func(t *Table, c gofat.Cluster) (uint32, fatErrors.DriverError)
	write func(t *Table, c gofat.Cluster, v uint32) fatErrors.DriverError
}

// New builds a Table for the given volume geometry and pre-populates
// FreeBitmap by scanning the active FAT once.
func New(
	fatType gofat.FatType,
	bytesPerSector uint32,
	fatSizeSectors uint32,
	reservedSectors uint32,
	numFATs uint8,
	activeFAT uint8,
	mirror bool,
	maxCluster uint32,
	cache gofat.BlockCache,
) (*Table, fatErrors.DriverError) {
	t := &Table{
		Type:            fatType,
		BytesPerSector:  bytesPerSector,
		FATSizeSectors:  fatSizeSectors,
		ReservedSectors: reservedSectors,
		NumFATs:         numFATs,
		ActiveFAT:       activeFAT,
		Mirror:          mirror,
		MaxCluster:      maxCluster,
		Cache:           cache,
		FreeBitmap:      bitmap.New(int(maxCluster) + 1),
		NextFree:        2,
	}

	switch fatType {
	case gofat.Fat12:
		t.read, t.write = read12, write12
	case gofat.Fat16:
		t.read, t.write = read16, write16
	default:
		t.read, t.write = read32, write32
	}

	if err := t.RecountFree(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) entryLBA(fatIndex uint8, byteOffset uint32) (gofat.LBA, uint32) {
	sectorOffset := byteOffset / t.BytesPerSector
	offsetInSector := byteOffset % t.BytesPerSector
	lba := gofat.LBA(t.ReservedSectors) + gofat.LBA(fatIndex)*gofat.LBA(t.FATSizeSectors) + gofat.LBA(sectorOffset)
	return lba, offsetInSector
}

// Next reads entry c of the active FAT, clamping out-of-range raw values to
// Bad and translating any value within the FAT type's EOF range to
// gofat.ClusterEOF.
func (t *Table) Next(c gofat.Cluster) (gofat.Cluster, fatErrors.DriverError) {
	raw, err := t.read(t, c)
	if err != nil {
		return 0, err
	}
	return t.decode(raw), nil
}

func (t *Table) decode(raw uint32) gofat.Cluster {
	low, high := t.Type.EofRange()
	if raw >= low && raw <= high {
		return gofat.ClusterEOF
	}
	if raw == t.Type.BadValue() {
		return gofat.ClusterBad
	}
	if raw == 0 {
		return gofat.ClusterFree
	}
	if raw > high {
		return gofat.ClusterBad
	}
	return gofat.Cluster(raw)
}

func (t *Table) encode(c gofat.Cluster) uint32 {
	switch c {
	case gofat.ClusterEOF:
		return t.Type.MaxValue()
	case gofat.ClusterBad:
		return t.Type.BadValue()
	case gofat.ClusterFree:
		return 0
	default:
		return uint32(c)
	}
}

// Set writes entry c in the active FAT, mirroring to every other FAT copy
// if Mirror is set.
func (t *Table) Set(c gofat.Cluster, v gofat.Cluster) fatErrors.DriverError {
	raw := t.encode(v)
	if err := t.write(t, c, raw); err != nil {
		return err
	}

	if t.Mirror {
		for i := uint8(0); i < t.NumFATs; i++ {
			if i == t.ActiveFAT {
				continue
			}
			if err := t.writeToFAT(i, c, raw); err != nil {
				// Mirror-FAT write failures are logged and swallowed per
				// spec.md section 7's propagation policy for opportunistic
				// mirror writes.
				log.Printf("gofat: failed to mirror FAT entry %d to copy %d: %v", c, i, err)
			}
		}
	}
	return nil
}

// AllocateChain scans starting at hint (wrapping around the FAT) for n free
// clusters, links them into a chain terminated by EofMarker, and returns
// the first cluster. On failure it rolls back any clusters it already
// claimed.
func (t *Table) AllocateChain(n uint32, hint gofat.Cluster) (gofat.Cluster, fatErrors.DriverError) {
	if n == 0 {
		return gofat.ClusterFree, nil
	}

	found := make([]gofat.Cluster, 0, n)
	start := uint32(hint)
	if start < 2 || start > t.MaxCluster {
		start = 2
	}

	total := t.MaxCluster - 1
	for i := uint32(0); i < total && uint32(len(found)) < n; i++ {
		idx := 2 + (start-2+i)%total
		if !t.FreeBitmap.Get(int(idx)) {
			found = append(found, gofat.Cluster(idx))
		}
	}

	if uint32(len(found)) < n {
		return 0, fatErrors.NoSpace.WithMessage("not enough free clusters to satisfy allocation")
	}

	for i, c := range found {
		next := gofat.ClusterEOF
		if i+1 < len(found) {
			next = found[i+1]
		}
		if err := t.Set(c, next); err != nil {
			// Roll back everything allocated so far, including this entry.
			for _, rollback := range found[:i+1] {
				_ = t.Set(rollback, gofat.ClusterFree)
				t.FreeBitmap.Set(int(rollback), false)
			}
			return 0, err
		}
		t.FreeBitmap.Set(int(c), true)
	}

	t.FreeCount -= n
	t.NextFree = found[len(found)-1]
	return found[0], nil
}

// FreeChain walks from start, writing Free to every entry and incrementing
// FreeCount. A cycle is detected when the walk reaches a cluster it has
// already freed (the walk is also bounded at MaxCluster iterations); if one
// is found, the walk stops and the remaining tail is
// abandoned as corruption (logged, not propagated, per DirEngine.compact-
// style non-critical failure handling elsewhere, but here matching FatTable
// free_chain's own documented behavior).
func (t *Table) FreeChain(start gofat.Cluster) fatErrors.DriverError {
	c := start
	seen := make(map[gofat.Cluster]bool)
	for i := uint32(0); i < t.MaxCluster+1 && c.IsDataCluster(); i++ {
		if seen[c] {
			break
		}
		seen[c] = true
		next, err := t.Next(c)
		if err != nil {
			return err
		}
		if err := t.Set(c, gofat.ClusterFree); err != nil {
			return err
		}
		t.FreeBitmap.Set(int(c), false)
		t.FreeCount++
		c = next
	}
	if c.IsDataCluster() {
		log.Printf("gofat: cycle detected freeing chain at cluster %d; abandoning remaining tail", start)
	}
	return nil
}

// CountChain returns the chain length starting at start, or 0 if a cycle is
// detected (the sentinel meaning "corrupt").
func (t *Table) CountChain(start gofat.Cluster) uint32 {
	seen := make(map[gofat.Cluster]bool)
	c := start
	count := uint32(0)
	for c.IsDataCluster() {
		if seen[c] {
			return 0
		}
		seen[c] = true
		count++
		next, err := t.Next(c)
		if err != nil {
			return 0
		}
		c = next
	}
	return count
}

// RecountFree rescans the entire active FAT, rebuilding FreeBitmap and
// FreeCount from scratch.
func (t *Table) RecountFree() fatErrors.DriverError {
	t.FreeBitmap = bitmap.New(int(t.MaxCluster) + 1)
	count := uint32(0)
	for c := uint32(2); c <= t.MaxCluster; c++ {
		v, err := t.Next(gofat.Cluster(c))
		if err != nil {
			return err
		}
		if v == gofat.ClusterFree {
			count++
		} else {
			t.FreeBitmap.Set(int(c), true)
		}
	}
	t.FreeCount = count
	return nil
}

func (t *Table) writeToFAT(fatIndex uint8, c gofat.Cluster, raw uint32) fatErrors.DriverError {
	saved := t.ActiveFAT
	t.ActiveFAT = fatIndex
	defer func() { t.ActiveFAT = saved }()
	return t.write(t, c, raw)
}
