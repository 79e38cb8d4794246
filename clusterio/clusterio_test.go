package clusterio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/hostbridge/memcache"
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

func newTestClusterIo(t *testing.T) *ClusterIo {
	const bytesPerSector = 512
	const sectorsPerCluster = 2
	const maxCluster = 50
	const firstDataSector = 10

	totalSectors := firstDataSector + maxCluster*sectorsPerCluster
	dev := newMemDevice(bytesPerSector * totalSectors)
	cache := memcache.NewBlockCache(dev, bytesPerSector, uint(totalSectors))

	return &ClusterIo{
		Cache:             cache,
		FirstDataSector:   firstDataSector,
		SectorsPerCluster: sectorsPerCluster,
		MaxCluster:        maxCluster,
	}
}

func TestLBAComputesDataClusterAddress(t *testing.T) {
	cio := newTestClusterIo(t)

	lba, err := cio.LBA(2, 0)
	require.Nil(t, err)
	assert.Equal(t, gofat.LBA(10), lba)

	lba, err = cio.LBA(3, 1)
	require.Nil(t, err)
	assert.Equal(t, gofat.LBA(13), lba)
}

func TestLBARejectsOutOfRangeCluster(t *testing.T) {
	cio := newTestClusterIo(t)

	_, err := cio.LBA(1, 0)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrInvalidArg, err.Kind())

	_, err = cio.LBA(gofat.Cluster(cio.MaxCluster+1), 0)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrCorrupt, err.Kind())
}

func TestLBARejectsOutOfRangeSector(t *testing.T) {
	cio := newTestClusterIo(t)
	_, err := cio.LBA(2, cio.SectorsPerCluster)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrInvalidArg, err.Kind())
}

func TestFixedRootClusterAddressing(t *testing.T) {
	cio := newTestClusterIo(t)
	cio.FixedRootStart = 3
	cio.FixedRootSectors = 4

	lba, err := cio.LBA(FixedRootCluster, 2)
	require.Nil(t, err)
	assert.Equal(t, gofat.LBA(5), lba)

	_, err = cio.LBA(FixedRootCluster, 4)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrInvalidArg, err.Kind())
}

func TestFixedRootClusterRejectedOnFAT32(t *testing.T) {
	cio := newTestClusterIo(t)
	_, err := cio.LBA(FixedRootCluster, 0)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrInvalidArg, err.Kind())
}

func TestWriteSectorThenReadSectorRoundTrips(t *testing.T) {
	cio := newTestClusterIo(t)
	payload := make([]byte, 512)
	copy(payload, "hello cluster")

	require.Nil(t, cio.WriteSector(2, 0, payload))

	got, err := cio.ReadSector(2, 0)
	require.Nil(t, err)
	assert.Equal(t, payload, got)
	cio.PutSector(2, 0)
}

func TestReadClusterReadsEveryCellOfACluster(t *testing.T) {
	cio := newTestClusterIo(t)

	first := make([]byte, 512)
	copy(first, "sector-zero")
	second := make([]byte, 512)
	copy(second, "sector-one")

	require.Nil(t, cio.WriteSector(4, 0, first))
	require.Nil(t, cio.WriteSector(4, 1, second))

	whole, err := cio.ReadCluster(4, 512)
	require.Nil(t, err)
	require.Len(t, whole, 1024)
	assert.Equal(t, first, whole[0:512])
	assert.Equal(t, second, whole[512:1024])
}

func TestDiscardClearsLoadedState(t *testing.T) {
	cio := newTestClusterIo(t)
	payload := make([]byte, 512)
	copy(payload, "stale")
	require.Nil(t, cio.WriteSector(2, 0, payload))

	require.Nil(t, cio.Discard(2))

	got, err := cio.ReadSector(2, 0)
	require.Nil(t, err)
	// Discard marks the block unloaded; a fresh load re-reads the
	// zero-filled backing device rather than returning the stale buffer.
	assert.Equal(t, make([]byte, 512), got)
}
