package nodestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/clusterio"
	"github.com/dargueta/gofat/direntry"
	"github.com/dargueta/gofat/fattable"
	"github.com/dargueta/gofat/hostbridge/memcache"
	"github.com/dargueta/gofat/vcache"
)

type memDevice struct {
	data []byte
}

func newMemDevice(size int) *memDevice {
	return &memDevice{data: make([]byte, size)}
}

func (d *memDevice) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, d.data[off:]), nil
}

func (d *memDevice) WriteAt(p []byte, off int64) (int, error) {
	return copy(d.data[off:], p), nil
}

const (
	testBytesPerSector    = 512
	testSectorsPerCluster = 1
	testFATSizeSectors    = 4
	testMaxCluster        = 200
	testFirstDataSector   = 1 + testFATSizeSectors
)

func newTestStore(t *testing.T) *Store {
	totalSectors := testFirstDataSector + testMaxCluster*testSectorsPerCluster
	dev := newMemDevice(testBytesPerSector * totalSectors)
	cache := memcache.NewBlockCache(dev, testBytesPerSector, uint(totalSectors))

	tbl, err := fattable.New(gofat.Fat16, testBytesPerSector, testFATSizeSectors, 1, 1, 0, true, testMaxCluster, cache)
	require.Nil(t, err)

	cio := &clusterio.ClusterIo{
		Cache:             cache,
		FirstDataSector:   testFirstDataSector,
		SectorsPerCluster: testSectorsPerCluster,
		MaxCluster:        testMaxCluster,
	}

	return &Store{
		Cio:               cio,
		Fat:               tbl,
		VCache:            vcache.New(),
		BytesPerSector:    testBytesPerSector,
		SectorsPerCluster: testSectorsPerCluster,
	}
}

func TestFromDirEntryDecodesCoreFields(t *testing.T) {
	now := time.Date(2024, time.March, 15, 13, 45, 32, 0, time.Local)
	var entry direntry.ShortEntry
	copy(entry.Name[:], "README  TXT")
	entry.Attr = gofat.AttrArchive
	entry.FileSize = 4096
	entry.SetStartCluster(gofat.Cluster(5))
	entry.CreateDate, entry.CreateTime, entry.CreateTenths = direntry.UnixToDOS(now)
	entry.WriteDate, entry.WriteTime = entry.CreateDate, entry.CreateTime
	entry.LastAccessDate = entry.CreateDate

	n := FromDirEntry(gofat.Ino(100), gofat.Ino(1), entry)

	assert.Equal(t, gofat.Ino(100), n.Inode)
	assert.Equal(t, gofat.Ino(1), n.ParentInode)
	assert.Equal(t, gofat.Cluster(5), n.StartCluster)
	assert.Equal(t, gofat.ClusterUnknown, n.EndCluster)
	assert.Equal(t, gofat.AttrArchive, n.Attr)
	assert.Equal(t, int64(4096), n.Size)
	assert.NotNil(t, n.Lock)
}

func TestToDirEntryRoundTripsThroughFromDirEntry(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 30, 0, 0, time.Local)
	var original direntry.ShortEntry
	copy(original.Name[:], "DATA    BIN")
	original.Attr = gofat.AttrReadOnly
	original.FileSize = 1024
	original.SetStartCluster(gofat.Cluster(10))
	original.CreateDate, original.CreateTime, original.CreateTenths = direntry.UnixToDOS(now)
	original.WriteDate, original.WriteTime = original.CreateDate, original.CreateTime
	original.LastAccessDate = original.CreateDate

	n := FromDirEntry(gofat.Ino(1), gofat.Ino(0), original)
	reencoded := ToDirEntry(n, original.Name, original.CaseFlags)

	assert.Equal(t, original.Name, reencoded.Name)
	assert.Equal(t, original.Attr, reencoded.Attr)
	assert.Equal(t, original.FileSize, reencoded.FileSize)
	assert.Equal(t, original.StartCluster(), reencoded.StartCluster())
}

func TestFlushWritesEntryAtLocation(t *testing.T) {
	s := newTestStore(t)
	n := &gofat.Node{
		Inode:        gofat.Ino(1),
		StartCluster: gofat.Cluster(5),
		Attr:         gofat.AttrArchive,
		Size:         2048,
		CreatedAt:    time.Now(),
		LastModified: time.Now(),
		LastAccessed: time.Now(),
		Lock:         gofat.NewRecursiveRWLock(),
	}
	var name [11]byte
	copy(name[:], "FILE    TXT")

	loc := FlushLocation{Cluster: gofat.Cluster(5), Sector: 0, Offset: 0}
	require.Nil(t, s.Flush(n, loc, name, 0))

	raw, err := s.Cio.ReadSector(loc.Cluster, loc.Sector)
	require.Nil(t, err)
	decoded := direntry.DecodeShortEntry(raw[0:direntry.EntrySize])
	assert.Equal(t, name, decoded.Name)
	assert.Equal(t, uint32(2048), decoded.FileSize)
	assert.Equal(t, gofat.Cluster(5), decoded.StartCluster())
}

func TestTruncateGrowsFromEmpty(t *testing.T) {
	s := newTestStore(t)
	n := &gofat.Node{
		Inode:        gofat.Ino(1),
		StartCluster: gofat.ClusterFree,
		EndCluster:   gofat.ClusterUnknown,
		Lock:         gofat.NewRecursiveRWLock(),
	}

	zeroFrom, zeroTo, freed, err := s.Truncate(n, int64(testBytesPerSector)*3, gofat.Cluster(2))
	require.Nil(t, err)
	assert.Empty(t, freed)
	assert.Equal(t, int64(0), zeroFrom)
	assert.Equal(t, int64(testBytesPerSector)*3, zeroTo)
	assert.True(t, n.StartCluster.IsDataCluster())
	assert.Equal(t, int64(testBytesPerSector)*3, n.Size)
	assert.Equal(t, uint32(3), s.Fat.CountChain(n.StartCluster))
}

func TestTruncateShrinksAndFreesClusters(t *testing.T) {
	s := newTestStore(t)
	start, aerr := s.Fat.AllocateChain(5, 2)
	require.Nil(t, aerr)

	n := &gofat.Node{
		Inode:        gofat.Ino(1),
		StartCluster: start,
		EndCluster:   gofat.ClusterUnknown,
		Size:         int64(testBytesPerSector) * 5,
		Lock:         gofat.NewRecursiveRWLock(),
	}

	_, _, freed, err := s.Truncate(n, int64(testBytesPerSector)*2, gofat.Cluster(0))
	require.Nil(t, err)
	assert.Len(t, freed, 3)
	assert.Equal(t, uint32(2), s.Fat.CountChain(n.StartCluster))
	assert.Equal(t, int64(testBytesPerSector)*2, n.Size)
}

func TestTruncateToZeroFreesEverything(t *testing.T) {
	s := newTestStore(t)
	start, aerr := s.Fat.AllocateChain(3, 2)
	require.Nil(t, aerr)

	n := &gofat.Node{
		Inode:        gofat.Ino(1),
		StartCluster: start,
		EndCluster:   gofat.ClusterUnknown,
		Size:         int64(testBytesPerSector) * 3,
		Lock:         gofat.NewRecursiveRWLock(),
	}

	_, _, freed, err := s.Truncate(n, 0, gofat.Cluster(0))
	require.Nil(t, err)
	assert.Len(t, freed, 3)
	assert.False(t, n.StartCluster.IsDataCluster())
	assert.Equal(t, int64(0), n.Size)
}
