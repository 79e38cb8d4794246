// Package memcache is an in-process reference implementation of the
// gofat.BlockCache and gofat.FileCache interfaces, backed by an io.ReaderAt
// / io.WriterAt device. It exists for tests, which have no host VFS to
// supply a real write-back cache.
package memcache

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"

	"github.com/dargueta/gofat"
)

// BlockDevice is the minimal random-access surface memcache needs from an
// underlying device image.
type BlockDevice interface {
	io.ReaderAt
	io.WriterAt
}

// BlockCache is a whole-device, load-on-demand, write-back sector cache.
// Grounded on the teacher's drivers/common/blockcache package: a flat byte
// buffer plus parallel loaded/dirty bitmaps, fetching and flushing through
// the BlockDevice it wraps.
type BlockCache struct {
	dev            BlockDevice
	bytesPerSector uint
	totalSectors   uint

	data         []byte
	loadedBlocks bitmap.Bitmap
	dirtyBlocks  bitmap.Bitmap
}

// NewBlockCache builds a BlockCache over dev, sized for totalSectors
// sectors of bytesPerSector bytes each.
func NewBlockCache(dev BlockDevice, bytesPerSector, totalSectors uint) *BlockCache {
	return &BlockCache{
		dev:            dev,
		bytesPerSector: bytesPerSector,
		totalSectors:   totalSectors,
		data:           make([]byte, bytesPerSector*totalSectors),
		loadedBlocks:   bitmap.NewSlice(int(totalSectors)),
		dirtyBlocks:    bitmap.NewSlice(int(totalSectors)),
	}
}

func (c *BlockCache) checkBounds(lba gofat.LBA) error {
	if uint(lba) >= c.totalSectors {
		return fmt.Errorf("memcache: sector %d out of range [0, %d)", lba, c.totalSectors)
	}
	return nil
}

func (c *BlockCache) slice(lba gofat.LBA) []byte {
	start := uint(lba) * c.bytesPerSector
	return c.data[start : start+c.bytesPerSector]
}

func (c *BlockCache) load(lba gofat.LBA) error {
	idx := int(lba)
	if c.loadedBlocks.Get(idx) {
		return nil
	}
	buf := c.slice(lba)
	if _, err := c.dev.ReadAt(buf, int64(lba)*int64(c.bytesPerSector)); err != nil && err != io.EOF {
		return fmt.Errorf("memcache: failed to load sector %d: %w", lba, err)
	}
	c.loadedBlocks.Set(idx, true)
	c.dirtyBlocks.Set(idx, false)
	return nil
}

// Get returns a read-only view of lba's sector, loading it from the device
// first if necessary.
func (c *BlockCache) Get(lba gofat.LBA) ([]byte, error) {
	if err := c.checkBounds(lba); err != nil {
		return nil, err
	}
	if err := c.load(lba); err != nil {
		return nil, err
	}
	return c.slice(lba), nil
}

// GetWritable returns a mutable view of lba's sector, marking it dirty.
func (c *BlockCache) GetWritable(lba gofat.LBA) ([]byte, error) {
	if err := c.checkBounds(lba); err != nil {
		return nil, err
	}
	if err := c.load(lba); err != nil {
		return nil, err
	}
	c.dirtyBlocks.Set(int(lba), true)
	return c.slice(lba), nil
}

// Put is a no-op for this in-memory cache; there are no reference counts to
// release. It exists to satisfy gofat.BlockCache.
func (c *BlockCache) Put(lba gofat.LBA) {}

// SetDirty explicitly marks or clears lba's dirty bit.
func (c *BlockCache) SetDirty(lba gofat.LBA, dirty bool) error {
	if err := c.checkBounds(lba); err != nil {
		return err
	}
	c.dirtyBlocks.Set(int(lba), dirty)
	return nil
}

// Sync flushes every dirty sector to the device.
func (c *BlockCache) Sync() error {
	return c.SyncRange(0, c.totalSectors)
}

// SyncRange flushes count dirty sectors starting at lba.
func (c *BlockCache) SyncRange(lba gofat.LBA, count uint) error {
	for i := uint(0); i < count; i++ {
		idx := int(lba) + int(i)
		if idx >= int(c.totalSectors) || !c.dirtyBlocks.Get(idx) {
			continue
		}
		buf := c.slice(gofat.LBA(idx))
		if _, err := c.dev.WriteAt(buf, int64(idx)*int64(c.bytesPerSector)); err != nil {
			return fmt.Errorf("memcache: failed to flush sector %d: %w", idx, err)
		}
		c.dirtyBlocks.Set(idx, false)
	}
	return nil
}

// Discard marks count sectors starting at lba as no longer loaded, so a
// future Get re-reads from the device instead of returning stale data.
func (c *BlockCache) Discard(lba gofat.LBA, count uint) error {
	for i := uint(0); i < count; i++ {
		idx := int(lba) + int(i)
		if idx >= int(c.totalSectors) {
			break
		}
		c.loadedBlocks.Set(idx, false)
		c.dirtyBlocks.Set(idx, false)
	}
	return nil
}
