package fattable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/hostbridge/memcache"
)

// memDevice is a minimal in-memory io.ReaderAt/io.WriterAt backing for
// memcache.BlockCache, standing in for the disk image a real mount would
// use.
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

func bytesPerEntry(fatType gofat.FatType) float64 {
	switch fatType {
	case gofat.Fat12:
		return 1.5
	case gofat.Fat16:
		return 2
	default:
		return 4
	}
}

// newTestTable sizes a FAT copy large enough to hold every entry up to
// maxCluster, so RecountFree's full scan at New() never reads past the
// backing device.
func newTestTable(t *testing.T, fatType gofat.FatType, maxCluster uint32) *Table {
	const bytesPerSector = 512
	neededBytes := uint32(float64(maxCluster+1)*bytesPerEntry(fatType)) + bytesPerSector
	fatSizeSectors := (neededBytes + bytesPerSector - 1) / bytesPerSector

	dev := newMemDevice(int(bytesPerSector * (1 + fatSizeSectors)))
	cache := memcache.NewBlockCache(dev, bytesPerSector, uint(1+fatSizeSectors))

	tbl, err := New(fatType, bytesPerSector, fatSizeSectors, 1, 1, 0, true, maxCluster, cache)
	require.Nil(t, err)
	return tbl
}

func TestFat16EntryEncodeDecodeRoundTrip(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 100)

	require.Nil(t, tbl.Set(2, gofat.Cluster(5)))
	next, err := tbl.Next(2)
	require.Nil(t, err)
	assert.Equal(t, gofat.Cluster(5), next)

	require.Nil(t, tbl.Set(5, gofat.ClusterEOF))
	next, err = tbl.Next(5)
	require.Nil(t, err)
	assert.Equal(t, gofat.ClusterEOF, next)
}

func TestFat12EntryEncodeDecodeRoundTrip(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat12, 100)

	require.Nil(t, tbl.Set(2, gofat.Cluster(3)))
	require.Nil(t, tbl.Set(3, gofat.ClusterEOF))

	next, err := tbl.Next(2)
	require.Nil(t, err)
	assert.Equal(t, gofat.Cluster(3), next)

	next, err = tbl.Next(3)
	require.Nil(t, err)
	assert.Equal(t, gofat.ClusterEOF, next)
}

func TestFat32EntryEncodeDecodeRoundTrip(t *testing.T) {
	// MaxCluster only bounds RecountFree's scan and AllocateChain's search
	// space; a FAT32 entry can still encode any 28-bit cluster number, so a
	// small table can still exercise a large stored value.
	tbl := newTestTable(t, gofat.Fat32, 20)

	require.Nil(t, tbl.Set(2, gofat.Cluster(70000)))
	next, err := tbl.Next(2)
	require.Nil(t, err)
	assert.Equal(t, gofat.Cluster(70000), next)
}

func TestAllocateChainLinksClustersInOrder(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 20)

	start, err := tbl.AllocateChain(3, 2)
	require.Nil(t, err)

	var chain []gofat.Cluster
	c := start
	for c.IsDataCluster() {
		chain = append(chain, c)
		next, nerr := tbl.Next(c)
		require.Nil(t, nerr)
		c = next
	}
	assert.Equal(t, gofat.ClusterEOF, c)
	assert.Len(t, chain, 3)
	assert.Equal(t, uint32(3), tbl.CountChain(start))
}

func TestAllocateChainFailsWhenNotEnoughSpace(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 5)

	_, err := tbl.AllocateChain(10, 2)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrNoSpace, err.Kind())
}

func TestAllocateChainZeroClustersReturnsFree(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 20)
	c, err := tbl.AllocateChain(0, 2)
	require.Nil(t, err)
	assert.Equal(t, gofat.ClusterFree, c)
}

func TestFreeChainReclaimsClusters(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 20)
	start, err := tbl.AllocateChain(4, 2)
	require.Nil(t, err)

	freeBefore := tbl.FreeCount
	require.Nil(t, tbl.FreeChain(start))
	assert.Equal(t, freeBefore+4, tbl.FreeCount)

	next, err := tbl.Next(start)
	require.Nil(t, err)
	assert.Equal(t, gofat.ClusterFree, next)
}

func TestCountChainDetectsCycle(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 20)
	require.Nil(t, tbl.Set(2, gofat.Cluster(3)))
	require.Nil(t, tbl.Set(3, gofat.Cluster(2)))

	assert.Equal(t, uint32(0), tbl.CountChain(2))
}

func TestRecountFreeMatchesAllocationState(t *testing.T) {
	tbl := newTestTable(t, gofat.Fat16, 10)
	_, err := tbl.AllocateChain(3, 2)
	require.Nil(t, err)

	before := tbl.FreeCount
	require.Nil(t, tbl.RecountFree())
	assert.Equal(t, before, tbl.FreeCount)
}

func TestMirrorWritesToAllFATCopies(t *testing.T) {
	const bytesPerSector = 512
	const fatSizeSectors = 2
	dev := newMemDevice(bytesPerSector * (1 + 2*fatSizeSectors))
	cache := memcache.NewBlockCache(dev, bytesPerSector, 1+2*fatSizeSectors)

	tbl, err := New(gofat.Fat16, bytesPerSector, fatSizeSectors, 1, 2, 0, true, 50, cache)
	require.Nil(t, err)

	require.Nil(t, tbl.Set(2, gofat.Cluster(9)))

	// Switch the active FAT to the mirror copy and confirm the write landed
	// there too.
	tbl.ActiveFAT = 1
	next, nerr := tbl.Next(2)
	require.Nil(t, nerr)
	assert.Equal(t, gofat.Cluster(9), next)
}
