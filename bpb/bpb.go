// Package bpb decodes and encodes the FAT boot sector / BIOS Parameter
// Block, classifies FAT12/16/32, and reads/writes the FAT32 fsinfo sector.
package bpb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/dargueta/gofat"
	fatErrors "github.com/dargueta/gofat/errors"
)

const SectorSize0 = 512

// Bpb is the decoded BIOS Parameter Block, holding the fields common to all
// three FAT widths plus the FAT32 extension when present.
type Bpb struct {
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	MediaDescriptor   uint8
	FATSizeSectors    uint32
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32

	// FAT32-only fields; zero when Type != Fat32.
	ExtFlags       uint16
	FSVersion      uint16
	RootCluster    uint32
	FSInfoSector   uint16
	BackupBootSec  uint16

	// Extended boot signature fields (present iff ExtBootSigPresent).
	ExtBootSigPresent bool
	DriveNumber       uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FSTypeLabel       [8]byte
}

// Mirror reports whether all FATs should be kept in sync (FAT32 ext-flags
// bit 7 clear), vs. a single active FAT selected by the low nibble.
func (b *Bpb) Mirror() bool {
	return b.ExtFlags&0x80 == 0
}

// ActiveFAT returns which FAT index is authoritative when Mirror is false.
func (b *Bpb) ActiveFAT() uint8 {
	return uint8(b.ExtFlags & 0x0F)
}

var ntfsSignature = []byte("NTFS    ")
var hpfsSignature = []byte("HPFS    ")

// Classify validates sector 0 of a candidate FAT volume and decodes its
// BPB, then classifies the volume as FAT12/16/32 by counting data clusters,
// per spec.md's classify() algorithm: N < 4085 => FAT12, N < 65525 => FAT16,
// else FAT32.
func Classify(sector0 []byte) (gofat.FatType, *Bpb, fatErrors.DriverError) {
	if len(sector0) < SectorSize0 {
		return 0, nil, fatErrors.NotFat.WithMessage("sector 0 shorter than 512 bytes")
	}
	if sector0[0x1FE] != 0x55 || sector0[0x1FF] != 0xAA {
		return 0, nil, fatErrors.NotFat.WithMessage("missing 0x55AA boot signature")
	}
	if bytes.Equal(sector0[3:11], ntfsSignature) || bytes.Equal(sector0[3:11], hpfsSignature) {
		return 0, nil, fatErrors.NotFat.WithMessage("sector 0 carries a non-FAT OEM signature")
	}

	b := &Bpb{}
	copy(b.OEMName[:], sector0[3:11])
	b.BytesPerSector = binary.LittleEndian.Uint16(sector0[0x0B:])
	b.SectorsPerCluster = sector0[0x0D]
	b.ReservedSectors = binary.LittleEndian.Uint16(sector0[0x0E:])
	b.NumFATs = sector0[0x10]
	b.RootEntryCount = binary.LittleEndian.Uint16(sector0[0x11:])
	b.MediaDescriptor = sector0[0x15]
	b.SectorsPerTrack = binary.LittleEndian.Uint16(sector0[0x18:])
	b.NumHeads = binary.LittleEndian.Uint16(sector0[0x1A:])
	b.HiddenSectors = binary.LittleEndian.Uint32(sector0[0x1C:])

	totalSectors16 := binary.LittleEndian.Uint16(sector0[0x13:])
	if totalSectors16 != 0 {
		b.TotalSectors = uint32(totalSectors16)
	} else {
		b.TotalSectors = binary.LittleEndian.Uint32(sector0[0x20:])
	}

	fatSize16 := binary.LittleEndian.Uint16(sector0[0x16:])
	if fatSize16 != 0 {
		b.FATSizeSectors = uint32(fatSize16)
	} else {
		b.FATSizeSectors = binary.LittleEndian.Uint32(sector0[0x24:])
		b.ExtFlags = binary.LittleEndian.Uint16(sector0[0x28:])
		b.FSVersion = binary.LittleEndian.Uint16(sector0[0x2A:])
		b.RootCluster = binary.LittleEndian.Uint32(sector0[0x2C:])
		b.FSInfoSector = binary.LittleEndian.Uint16(sector0[0x30:])
		b.BackupBootSec = binary.LittleEndian.Uint16(sector0[0x32:])
	}

	if err := validateGeometry(b); err != nil {
		return 0, nil, err
	}

	rootDirSectors := (uint32(b.RootEntryCount)*32 + uint32(b.BytesPerSector) - 1) / uint32(b.BytesPerSector)
	totalFATSectors := uint32(b.NumFATs) * b.FATSizeSectors
	dataSectors := b.TotalSectors - (uint32(b.ReservedSectors) + totalFATSectors + rootDirSectors)
	dataClusters := dataSectors / uint32(b.SectorsPerCluster)

	fatType := gofat.ClassifyFatType(dataClusters)

	// The "DOS 3.3 legacy" layout (no extended boot signature) and the
	// modern layout both place the 0x29 marker at a fixed, width-dependent
	// offset.
	extSigOffset := 0x26
	if fatType == gofat.Fat32 {
		extSigOffset = 0x42
	}
	if sector0[extSigOffset] == 0x29 {
		b.ExtBootSigPresent = true
		b.DriveNumber = sector0[extSigOffset-2]
		b.VolumeID = binary.LittleEndian.Uint32(sector0[extSigOffset+1:])
		copy(b.VolumeLabel[:], sector0[extSigOffset+5:extSigOffset+16])
		copy(b.FSTypeLabel[:], sector0[extSigOffset+16:extSigOffset+24])
	}

	if fatType == gofat.Fat32 && rootDirSectors != 0 {
		return 0, nil, fatErrors.Corrupt.WithMessage("FAT32 volume has a nonzero fixed root directory size")
	}

	// spec.md section 9's open question: some formatting tools produce a
	// FAT whose entry-0 media byte mismatches the BPB's media descriptor.
	// Classify does not read the FAT; Mount checks that byte with
	// CheckMediaDescriptor, which only logs.
	_ = rootDirSectors

	return fatType, b, nil
}

func validateGeometry(b *Bpb) fatErrors.DriverError {
	switch b.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return fatErrors.Unsupported.WithMessage(
			fmt.Sprintf("bytes/sector must be 512, 1024, 2048, or 4096, got %d", b.BytesPerSector))
	}

	switch b.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return fatErrors.Unsupported.WithMessage(
			fmt.Sprintf("sectors/cluster must be a power of 2 in 1..128, got %d", b.SectorsPerCluster))
	}

	bytesPerCluster := uint32(b.BytesPerSector) * uint32(b.SectorsPerCluster)
	if bytesPerCluster > 32768 {
		return fatErrors.Unsupported.WithMessage(
			fmt.Sprintf("bytes/cluster cannot exceed 32768, got %d", bytesPerCluster))
	}
	if b.NumFATs == 0 || b.NumFATs > 8 {
		return fatErrors.Unsupported.WithMessage(
			fmt.Sprintf("number of FATs must be in 1..8, got %d", b.NumFATs))
	}
	return nil
}

// CheckMediaDescriptor logs, but does not fail, a mismatch between the BPB
// media descriptor and the low byte of FAT entry 0. Some formatting tools
// produce volumes like this; spec.md section 9 calls for reproducing the
// ported driver's tolerance.
func CheckMediaDescriptor(bpbMedia uint8, fatEntryZeroLowByte uint8) {
	if bpbMedia != fatEntryZeroLowByte {
		log.Printf(
			"gofat: BPB media descriptor 0x%02X does not match FAT[0] low byte 0x%02X; continuing",
			bpbMedia, fatEntryZeroLowByte,
		)
	}
}

// ReadLabel implements spec.md's read_label: the BPB-embedded label is used
// as a fallback, then superseded by a VolumeLabel entry in the root
// directory if one is found by the caller (the caller supplies the
// already-scanned 11-byte name since DirEngine owns directory iteration).
func ReadLabel(b *Bpb, rootDirLabel []byte, rootDirLabelFound bool) string {
	label := ""
	if b.ExtBootSigPresent {
		trimmed := bytes.TrimRight(b.VolumeLabel[:], " ")
		if len(trimmed) > 0 {
			label = string(trimmed)
		}
	}
	if rootDirLabelFound {
		trimmed := bytes.TrimRight(rootDirLabel, " ")
		label = string(trimmed)
	}
	return label
}
