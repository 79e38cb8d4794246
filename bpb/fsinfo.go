package bpb

import (
	"encoding/binary"

	fatErrors "github.com/dargueta/gofat/errors"
)

// FSInfo is the FAT32-only cached free-cluster count and next-free hint.
type FSInfo struct {
	FreeCount uint32
	NextFree  uint32
}

var fsInfoLeadSig = []byte("RRaA")
var fsInfoStructSig = []byte("rrAa")

// ReadFSInfo decodes a 512-byte fsinfo sector. A corrupted fsinfo is
// non-fatal: the caller gets ok=false and should treat free-count/next-free
// as unknown, to be rebuilt by fattable's RecountFree.
func ReadFSInfo(sector []byte) (info FSInfo, ok bool) {
	if len(sector) < 512 {
		return FSInfo{}, false
	}
	if string(sector[0:4]) != string(fsInfoLeadSig) {
		return FSInfo{}, false
	}
	if string(sector[0x1E4:0x1E8]) != string(fsInfoStructSig) {
		return FSInfo{}, false
	}
	if sector[0x1FC] != 0x00 || sector[0x1FD] != 0x00 || sector[0x1FE] != 0x55 || sector[0x1FF] != 0xAA {
		return FSInfo{}, false
	}

	return FSInfo{
		FreeCount: binary.LittleEndian.Uint32(sector[0x1E8:]),
		NextFree:  binary.LittleEndian.Uint32(sector[0x1EC:]),
	}, true
}

// WriteFSInfo encodes info into a fresh 512-byte fsinfo sector.
func WriteFSInfo(info FSInfo) []byte {
	sector := make([]byte, 512)
	copy(sector[0:4], fsInfoLeadSig)
	copy(sector[0x1E4:0x1E8], fsInfoStructSig)
	binary.LittleEndian.PutUint32(sector[0x1E8:], info.FreeCount)
	binary.LittleEndian.PutUint32(sector[0x1EC:], info.NextFree)
	sector[0x1FC] = 0x00
	sector[0x1FD] = 0x00
	sector[0x1FE] = 0x55
	sector[0x1FF] = 0xAA
	return sector
}

// WriteBootSector encodes a Bpb back into a 512-byte boot sector image,
// satisfying the round-trip law parse_bpb(write_bpb(p)) == p for any valid
// parameter set.
func WriteBootSector(fatType interface{ String() string }, b *Bpb, bootJump [3]byte, bootCode []byte) ([]byte, fatErrors.DriverError) {
	sector := make([]byte, 512)
	copy(sector[0:3], bootJump[:])
	copy(sector[3:11], b.OEMName[:])
	binary.LittleEndian.PutUint16(sector[0x0B:], b.BytesPerSector)
	sector[0x0D] = b.SectorsPerCluster
	binary.LittleEndian.PutUint16(sector[0x0E:], b.ReservedSectors)
	sector[0x10] = b.NumFATs
	binary.LittleEndian.PutUint16(sector[0x11:], b.RootEntryCount)
	if b.TotalSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(sector[0x13:], uint16(b.TotalSectors))
	} else {
		binary.LittleEndian.PutUint32(sector[0x20:], b.TotalSectors)
	}
	sector[0x15] = b.MediaDescriptor
	if b.FATSizeSectors <= 0xFFFF && fatType.String() != "FAT32" {
		binary.LittleEndian.PutUint16(sector[0x16:], uint16(b.FATSizeSectors))
	} else {
		binary.LittleEndian.PutUint32(sector[0x24:], b.FATSizeSectors)
		binary.LittleEndian.PutUint16(sector[0x28:], b.ExtFlags)
		binary.LittleEndian.PutUint16(sector[0x2A:], b.FSVersion)
		binary.LittleEndian.PutUint32(sector[0x2C:], b.RootCluster)
		binary.LittleEndian.PutUint16(sector[0x30:], b.FSInfoSector)
		binary.LittleEndian.PutUint16(sector[0x32:], b.BackupBootSec)
	}
	binary.LittleEndian.PutUint16(sector[0x18:], b.SectorsPerTrack)
	binary.LittleEndian.PutUint16(sector[0x1A:], b.NumHeads)
	binary.LittleEndian.PutUint32(sector[0x1C:], b.HiddenSectors)

	extSigOffset := 0x26
	if fatType.String() == "FAT32" {
		extSigOffset = 0x42
	}
	if b.ExtBootSigPresent {
		sector[extSigOffset-2] = b.DriveNumber
		sector[extSigOffset] = 0x29
		binary.LittleEndian.PutUint32(sector[extSigOffset+1:], b.VolumeID)
		copy(sector[extSigOffset+5:extSigOffset+16], b.VolumeLabel[:])
		copy(sector[extSigOffset+16:extSigOffset+24], b.FSTypeLabel[:])
	}

	if len(bootCode) > 0 {
		copy(sector[extSigOffset+24:0x1FE], bootCode)
	}

	sector[0x1FE] = 0x55
	sector[0x1FF] = 0xAA
	return sector, nil
}
