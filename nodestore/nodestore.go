// Package nodestore manages the in-memory Node lifecycle: decoding one from
// its directory entry, flushing dirty fields back, and truncating/extending
// its cluster chain per the deadlock-avoidance protocol in spec.md section 5.
package nodestore

import (
	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/clusterio"
	"github.com/dargueta/gofat/direntry"
	fatErrors "github.com/dargueta/gofat/errors"
	"github.com/dargueta/gofat/fattable"
	"github.com/dargueta/gofat/vcache"
)

// Store ties a volume's ClusterIo, FatTable, and VCache together for
// operating on Nodes.
type Store struct {
	Cio    *clusterio.ClusterIo
	Fat    *fattable.Table
	VCache *vcache.Cache

	BytesPerSector    uint32
	SectorsPerCluster uint32
}

func (s *Store) bytesPerCluster() int64 {
	return int64(s.BytesPerSector) * int64(s.SectorsPerCluster)
}

// FromDirEntry decodes a freshly-read ShortEntry into a new Node. The
// caller supplies parentInode (resolved via VCache by the directory lookup
// that found this entry) and the node's own inode (already assigned).
func FromDirEntry(inode, parentInode gofat.Ino, entry direntry.ShortEntry) *gofat.Node {
	n := &gofat.Node{
		Inode:        inode,
		ParentInode:  parentInode,
		StartCluster: entry.StartCluster(),
		EndCluster:   gofat.ClusterUnknown,
		Attr:         entry.Attr,
		Size:         int64(entry.FileSize),
		Lock:         gofat.NewRecursiveRWLock(),
		DirSlot:      gofat.NoDirSlot,
	}
	n.CreatedAt = direntry.Timestamp(entry.CreateDate, entry.CreateTime, entry.CreateTenths)
	n.LastAccessed = direntry.Timestamp(entry.LastAccessDate, 0, 0)
	n.LastModified = direntry.Timestamp(entry.WriteDate, entry.WriteTime, 0)
	n.LastChanged = n.LastModified
	return n
}

// ToDirEntry re-encodes a Node's current in-memory fields into a ShortEntry,
// preserving the on-disk name (which Flush must supply separately, since
// Node does not carry it).
func ToDirEntry(n *gofat.Node, name [11]byte, caseFlags uint8) direntry.ShortEntry {
	e := direntry.ShortEntry{
		Name:      name,
		Attr:      n.Attr,
		CaseFlags: caseFlags,
		FileSize:  uint32(n.Size),
	}
	e.SetStartCluster(n.StartCluster)
	e.CreateDate, e.CreateTime, e.CreateTenths = direntry.UnixToDOS(n.CreatedAt)
	e.LastAccessDate, _, _ = direntry.UnixToDOS(n.LastAccessed)
	e.WriteDate, e.WriteTime, _ = direntry.UnixToDOS(n.LastModified)
	return e
}

// FlushLocation is where Flush writes the re-encoded entry: the directory
// cluster (or clusterio.FixedRootCluster) and sector/offset within it,
// resolved by the caller via VCache + DirEngine before calling Flush.
type FlushLocation struct {
	Cluster gofat.Cluster
	Sector  uint32
	Offset  uint32
}

// Flush rewrites the 32-byte ShortEntry at loc with n's current fields.
// LFN slots preceding it are untouched, since none of the fields Flush
// writes can affect the long name or its checksum.
func (s *Store) Flush(n *gofat.Node, loc FlushLocation, name [11]byte, caseFlags uint8) fatErrors.DriverError {
	entry := ToDirEntry(n, name, caseFlags)
	raw := entry.Encode()

	data, err := s.Cio.GetWritableSector(loc.Cluster, loc.Sector)
	if err != nil {
		return err
	}
	defer s.Cio.PutSector(loc.Cluster, loc.Sector)
	copy(data[loc.Offset:loc.Offset+direntry.EntrySize], raw)
	return nil
}

// Truncate brings n to exactly newSize bytes. It returns the list of
// clusters freed (for the caller to Discard from the block cache) and,
// separately, the byte range of the file's tail the caller must zero via
// the host file cache AFTER releasing n's write lock — this is the
// deadlock-avoidance handoff of spec.md section 5: Truncate itself never
// touches the file cache.
func (s *Store) Truncate(n *gofat.Node, newSize int64, hint gofat.Cluster) (zeroFrom, zeroTo int64, freed []gofat.Cluster, err fatErrors.DriverError) {
	bpc := s.bytesPerCluster()
	targetClusters := uint32(0)
	if newSize > 0 {
		targetClusters = uint32((newSize + bpc - 1) / bpc)
	}

	oldSize := n.Size

	n.Resizing = true
	newStart, newEnd, freedClusters, terr := s.Fat.TruncateOrExtend(n.StartCluster, targetClusters, hint)
	n.Resizing = false
	if terr != nil {
		return 0, 0, nil, terr
	}

	wasEmpty := !n.StartCluster.IsDataCluster()
	isEmpty := !newStart.IsDataCluster()
	if wasEmpty != isEmpty {
		// Crossing the zero-byte/non-empty boundary changes which natural
		// ino encoding applies; the caller (FatFs) must re-home this node's
		// VCache entry once it knows the new parent-dir cluster.
	}

	n.StartCluster = newStart
	n.EndCluster = newEnd
	n.Size = newSize

	for _, c := range freedClusters {
		_ = s.Cio.Discard(c)
	}

	if newSize > oldSize {
		return oldSize, newSize, freedClusters, nil
	}
	return 0, 0, freedClusters, nil
}
