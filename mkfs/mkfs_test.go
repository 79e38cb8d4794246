package mkfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/bpb"
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

func TestValidateAcceptsAPredefinedGeometry(t *testing.T) {
	g, err := GetPredefinedGeometry("1440k")
	require.Nil(t, err)
	assert.Nil(t, Validate(g))
}

func TestValidateCollectsEveryProblemAtOnce(t *testing.T) {
	bad := Geometry{
		BytesPerSector:    500,
		SectorsPerCluster: 3,
		NumFATs:           0,
		RootEntries:       0,
		TotalSectors:      100,
		FATSizeSectors:    1,
		ReservedSectors:   1,
	}
	err := Validate(bad)
	require.NotNil(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "bytes/sector")
	assert.Contains(t, msg, "sectors/cluster")
	assert.Contains(t, msg, "number of FATs")
	assert.Contains(t, msg, "root entry count")
}

func TestValidateRejectsNonZeroRootEntriesOnFAT32Geometry(t *testing.T) {
	g := Geometry{
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		RootEntries:       512,
		TotalSectors:      600000,
		FATSizeSectors:    800,
		MediaDescriptor:   0xF8,
	}
	err := Validate(g)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "zero root entry count")
}

func TestFormatWritesClassifiableBootSectorForFAT12Floppy(t *testing.T) {
	g, err := GetPredefinedGeometry("1440k")
	require.Nil(t, err)

	dev := newMemDevice(int(g.TotalSectors) * int(g.BytesPerSector))
	opts := Options{Label: "MYDISK", Now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	require.Nil(t, Format(dev, g, opts))

	fatType, b, cerr := bpb.Classify(dev.data[0:512])
	require.Nil(t, cerr)
	assert.Equal(t, gofat.Fat12, fatType)
	assert.Equal(t, g.BytesPerSector, b.BytesPerSector)
	assert.Equal(t, g.SectorsPerCluster, b.SectorsPerCluster)
}

func TestFormatRejectsInvalidGeometry(t *testing.T) {
	dev := newMemDevice(1024)
	bad := Geometry{BytesPerSector: 500}
	assert.NotNil(t, Format(dev, bad, Options{}))
}

func TestFormatWritesFAT32BackupBootSectorAndFSInfo(t *testing.T) {
	g := Geometry{
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		RootEntries:       0,
		TotalSectors:      600000,
		FATSizeSectors:    800,
		MediaDescriptor:   0xF8,
	}
	require.Equal(t, gofat.Fat32, g.fatType())

	dev := newMemDevice(int(g.TotalSectors) * int(g.BytesPerSector))
	opts := Options{Label: "BIGVOL", Now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.Nil(t, Format(dev, g, opts))

	fatType, b, cerr := bpb.Classify(dev.data[0:512])
	require.Nil(t, cerr)
	assert.Equal(t, gofat.Fat32, fatType)
	assert.Equal(t, uint32(2), b.RootCluster)

	backup := dev.data[int(b.BackupBootSec)*512 : int(b.BackupBootSec)*512+512]
	assert.Equal(t, dev.data[0:512], backup)

	fsinfo, ok := bpb.ReadFSInfo(dev.data[int(b.FSInfoSector)*512 : int(b.FSInfoSector)*512+512])
	require.True(t, ok)
	assert.Greater(t, fsinfo.FreeCount, uint32(0))
}

func TestFormatForcesFATWidthWhenRequested(t *testing.T) {
	g, err := GetPredefinedGeometry("1440k")
	require.Nil(t, err)

	dev := newMemDevice(int(g.TotalSectors) * int(g.BytesPerSector))
	opts := Options{ForceFAT: true, ForceType: gofat.Fat16}
	require.Nil(t, Format(dev, g, opts))

	fatType, _, cerr := bpb.Classify(dev.data[0:512])
	require.Nil(t, cerr)
	assert.Equal(t, gofat.Fat16, fatType)
}
