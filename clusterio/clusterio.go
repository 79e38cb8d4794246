// Package clusterio translates between (cluster, sector-in-cluster)
// coordinates and device LBAs, and provides thin sector read/write/discard
// wrappers over the host block cache. For FAT12/16, cluster 1 is a
// synthetic value meaning "the fixed root-directory sector range" rather
// than an addressable data cluster.
package clusterio

import (
	"fmt"

	"github.com/dargueta/gofat"
	fatErrors "github.com/dargueta/gofat/errors"
)

// FixedRootCluster is the synthetic cluster number used to address the
// FAT12/16 fixed root directory range, which is not part of the regular
// data-cluster numbering.
const FixedRootCluster gofat.Cluster = 1

// ClusterIo translates cluster/sector-in-cluster pairs to device LBAs for
// one mounted volume.
type ClusterIo struct {
	Cache gofat.BlockCache

	FirstDataSector   uint32
	SectorsPerCluster uint32
	MaxCluster        uint32

	// FixedRootStart/FixedRootSectors describe the FAT12/16 fixed root
	// directory's sector range; both are zero on FAT32, where the root is
	// an ordinary cluster chain.
	FixedRootStart   uint32
	FixedRootSectors uint32
}

// LBA computes the device sector address of sector s within cluster c.
func (cio *ClusterIo) LBA(c gofat.Cluster, s uint32) (gofat.LBA, fatErrors.DriverError) {
	if c == FixedRootCluster {
		if cio.FixedRootSectors == 0 {
			return 0, fatErrors.InvalidArg.WithMessage("fixed root cluster addressed on a FAT32 volume")
		}
		if s >= cio.FixedRootSectors {
			return 0, fatErrors.InvalidArg.WithMessage(
				fmt.Sprintf("sector %d out of range for %d-sector fixed root directory", s, cio.FixedRootSectors))
		}
		return gofat.LBA(cio.FixedRootStart + s), nil
	}

	if c < 2 || c > gofat.Cluster(cio.MaxCluster) {
		return 0, fatErrors.Corrupt.WithMessage(fmt.Sprintf("cluster %d out of range [2, %d]", c, cio.MaxCluster))
	}
	if s >= cio.SectorsPerCluster {
		return 0, fatErrors.InvalidArg.WithMessage(
			fmt.Sprintf("sector-in-cluster %d out of range [0, %d)", s, cio.SectorsPerCluster))
	}

	return gofat.LBA(cio.FirstDataSector) + gofat.LBA(uint32(c)-2)*gofat.LBA(cio.SectorsPerCluster) + gofat.LBA(s), nil
}

// ReadSector returns a read-only view of sector s within cluster c.
func (cio *ClusterIo) ReadSector(c gofat.Cluster, s uint32) ([]byte, fatErrors.DriverError) {
	lba, err := cio.LBA(c, s)
	if err != nil {
		return nil, err
	}
	data, ioErr := cio.Cache.Get(lba)
	if ioErr != nil {
		return nil, fatErrors.Io.WrapError(ioErr)
	}
	return data, nil
}

// PutSector releases a reference obtained from ReadSector or
// GetWritableSector.
func (cio *ClusterIo) PutSector(c gofat.Cluster, s uint32) {
	lba, err := cio.LBA(c, s)
	if err != nil {
		return
	}
	cio.Cache.Put(lba)
}

// GetWritableSector returns a mutable view of sector s within cluster c,
// marking it dirty. Callers must release it with PutSector on every exit
// path, including error paths.
func (cio *ClusterIo) GetWritableSector(c gofat.Cluster, s uint32) ([]byte, fatErrors.DriverError) {
	lba, err := cio.LBA(c, s)
	if err != nil {
		return nil, err
	}
	data, ioErr := cio.Cache.GetWritable(lba)
	if ioErr != nil {
		return nil, fatErrors.Io.WrapError(ioErr)
	}
	return data, nil
}

// WriteSector writes data (must be exactly one sector) into sector s of
// cluster c.
func (cio *ClusterIo) WriteSector(c gofat.Cluster, s uint32, data []byte) fatErrors.DriverError {
	dst, err := cio.GetWritableSector(c, s)
	if err != nil {
		return err
	}
	defer cio.PutSector(c, s)
	copy(dst, data)
	return nil
}

// Discard tells the block cache that a chain being freed no longer holds
// meaningful data, letting it drop cached copies without writing them back.
func (cio *ClusterIo) Discard(c gofat.Cluster) fatErrors.DriverError {
	lba, err := cio.LBA(c, 0)
	if err != nil {
		return err
	}
	count := cio.SectorsPerCluster
	if c == FixedRootCluster {
		count = cio.FixedRootSectors
	}
	if ioErr := cio.Cache.Discard(lba, uint(count)); ioErr != nil {
		return fatErrors.Io.WrapError(ioErr)
	}
	return nil
}

// ReadCluster reads an entire cluster's worth of bytes, one sector at a
// time.
func (cio *ClusterIo) ReadCluster(c gofat.Cluster, bytesPerSector uint32) ([]byte, fatErrors.DriverError) {
	count := cio.SectorsPerCluster
	if c == FixedRootCluster {
		count = cio.FixedRootSectors
	}
	out := make([]byte, count*bytesPerSector)
	for s := uint32(0); s < count; s++ {
		sector, err := cio.ReadSector(c, s)
		if err != nil {
			return nil, err
		}
		copy(out[s*bytesPerSector:], sector)
		cio.PutSector(c, s)
	}
	return out, nil
}
