package bpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
)

func sampleFat16Bpb() *Bpb {
	b := &Bpb{
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		NumFATs:           2,
		RootEntryCount:    512,
		TotalSectors:      65536,
		MediaDescriptor:   0xF8,
		FATSizeSectors:    128,
		SectorsPerTrack:   63,
		NumHeads:          16,
		ExtBootSigPresent: true,
		DriveNumber:       0x80,
		VolumeID:          0xDEADBEEF,
	}
	copy(b.OEMName[:], "GOFAT1.0")
	copy(b.VolumeLabel[:], "NO NAME    ")
	copy(b.FSTypeLabel[:], "FAT16   ")
	return b
}

func TestWriteBootSectorRoundTripsThroughClassify(t *testing.T) {
	b := sampleFat16Bpb()
	sector, err := WriteBootSector(gofat.Fat16, b, [3]byte{0xEB, 0x3C, 0x90}, nil)
	require.Nil(t, err)
	require.Len(t, sector, 512)

	fatType, decoded, cerr := Classify(sector)
	require.Nil(t, cerr)
	assert.Equal(t, gofat.Fat16, fatType)
	assert.Equal(t, b.BytesPerSector, decoded.BytesPerSector)
	assert.Equal(t, b.SectorsPerCluster, decoded.SectorsPerCluster)
	assert.Equal(t, b.ReservedSectors, decoded.ReservedSectors)
	assert.Equal(t, b.NumFATs, decoded.NumFATs)
	assert.Equal(t, b.RootEntryCount, decoded.RootEntryCount)
	assert.Equal(t, b.TotalSectors, decoded.TotalSectors)
	assert.Equal(t, b.FATSizeSectors, decoded.FATSizeSectors)
	assert.Equal(t, b.VolumeID, decoded.VolumeID)
	assert.True(t, decoded.ExtBootSigPresent)
}

func TestClassifyRejectsMissingBootSignature(t *testing.T) {
	sector := make([]byte, 512)
	_, _, err := Classify(sector)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrNotFat, err.Kind())
}

func TestClassifyRejectsShortSector(t *testing.T) {
	_, _, err := Classify(make([]byte, 100))
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrNotFat, err.Kind())
}

func TestClassifyRejectsNTFSSignature(t *testing.T) {
	sector := make([]byte, 512)
	copy(sector[3:11], "NTFS    ")
	sector[0x1FE] = 0x55
	sector[0x1FF] = 0xAA
	_, _, err := Classify(sector)
	require.NotNil(t, err)
	assert.Equal(t, gofat.ErrNotFat, err.Kind())
}

func TestClassifyPicksFat32ForLargeVolumes(t *testing.T) {
	b := &Bpb{
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		RootEntryCount:    0,
		TotalSectors:      2097152,
		MediaDescriptor:   0xF8,
		FATSizeSectors:    2048,
		RootCluster:       2,
		FSInfoSector:      1,
		BackupBootSec:     6,
		ExtBootSigPresent: true,
	}
	copy(b.OEMName[:], "GOFAT1.0")
	copy(b.FSTypeLabel[:], "FAT32   ")

	sector, err := WriteBootSector(gofat.Fat32, b, [3]byte{0xEB, 0x3C, 0x90}, nil)
	require.Nil(t, err)

	fatType, decoded, cerr := Classify(sector)
	require.Nil(t, cerr)
	assert.Equal(t, gofat.Fat32, fatType)
	assert.Equal(t, uint32(2), decoded.RootCluster)
}

func TestFSInfoRoundTrip(t *testing.T) {
	info := FSInfo{FreeCount: 12345, NextFree: 678}
	sector := WriteFSInfo(info)
	decoded, ok := ReadFSInfo(sector)
	require.True(t, ok)
	assert.Equal(t, info, decoded)
}

func TestReadFSInfoRejectsBadSignature(t *testing.T) {
	sector := make([]byte, 512)
	_, ok := ReadFSInfo(sector)
	assert.False(t, ok)
}

func TestReadLabelPrefersRootDirLabel(t *testing.T) {
	b := &Bpb{ExtBootSigPresent: true}
	copy(b.VolumeLabel[:], "BPBLABEL   ")

	assert.Equal(t, "BPBLABEL", ReadLabel(b, nil, false))
	assert.Equal(t, "ROOTLABEL", ReadLabel(b, []byte("ROOTLABEL  "), true))
}
