package fattable

import (
	"github.com/dargueta/gofat"
	fatErrors "github.com/dargueta/gofat/errors"
)

// The three codec pairs below are selected once at New() time and assigned
// to Table.read/Table.write, so Next/Set never branch on FAT width again
// after mount (spec.md section 9).

func read12(t *Table, c gofat.Cluster) (uint32, fatErrors.DriverError) {
	byteOffset := uint32(c) + uint32(c)/2
	lba, off := t.entryLBA(t.ActiveFAT, byteOffset)

	b0, err := t.Cache.Get(lba)
	if err != nil {
		return 0, fatErrors.Io.WrapError(err)
	}
	lo := uint32(b0[off])

	var hi uint32
	if off == t.BytesPerSector-1 {
		t.Cache.Put(lba)
		b1, err := t.Cache.Get(lba + 1)
		if err != nil {
			return 0, fatErrors.Io.WrapError(err)
		}
		hi = uint32(b1[0])
		t.Cache.Put(lba + 1)
	} else {
		hi = uint32(b0[off+1])
		t.Cache.Put(lba)
	}

	packed := lo | (hi << 8)
	if c%2 == 0 {
		return packed & 0x0FFF, nil
	}
	return packed >> 4, nil
}

func write12(t *Table, c gofat.Cluster, v uint32) fatErrors.DriverError {
	v &= 0x0FFF
	byteOffset := uint32(c) + uint32(c)/2
	lba, off := t.entryLBA(t.ActiveFAT, byteOffset)

	straddles := off == t.BytesPerSector-1

	b0, err := t.Cache.GetWritable(lba)
	if err != nil {
		return fatErrors.Io.WrapError(err)
	}

	var b1 []byte
	if straddles {
		var err2 error
		b1, err2 = t.Cache.GetWritable(lba + 1)
		if err2 != nil {
			t.Cache.Put(lba)
			return fatErrors.Io.WrapError(err2)
		}
	}

	getByte := func(idx uint32) byte {
		if !straddles || idx == off {
			return b0[idx]
		}
		return b1[0]
	}
	setByte := func(idx uint32, val byte) {
		if !straddles || idx == off {
			b0[idx] = val
		} else {
			b1[0] = val
		}
	}

	existingLo := uint32(getByte(off))
	existingHi := uint32(getByte(off + 1))
	existing := existingLo | (existingHi << 8)

	var packed uint32
	if c%2 == 0 {
		packed = (existing & 0xF000) | v
	} else {
		packed = (existing & 0x000F) | (v << 4)
	}

	setByte(off, byte(packed&0xFF))
	setByte(off+1, byte((packed>>8)&0xFF))

	t.Cache.Put(lba)
	if straddles {
		t.Cache.Put(lba + 1)
	}
	return nil
}

func read16(t *Table, c gofat.Cluster) (uint32, fatErrors.DriverError) {
	byteOffset := uint32(c) * 2
	lba, off := t.entryLBA(t.ActiveFAT, byteOffset)
	sector, err := t.Cache.Get(lba)
	if err != nil {
		return 0, fatErrors.Io.WrapError(err)
	}
	defer t.Cache.Put(lba)
	return uint32(sector[off]) | uint32(sector[off+1])<<8, nil
}

func write16(t *Table, c gofat.Cluster, v uint32) fatErrors.DriverError {
	byteOffset := uint32(c) * 2
	lba, off := t.entryLBA(t.ActiveFAT, byteOffset)
	sector, err := t.Cache.GetWritable(lba)
	if err != nil {
		return fatErrors.Io.WrapError(err)
	}
	defer t.Cache.Put(lba)
	sector[off] = byte(v & 0xFF)
	sector[off+1] = byte((v >> 8) & 0xFF)
	return nil
}

func read32(t *Table, c gofat.Cluster) (uint32, fatErrors.DriverError) {
	byteOffset := uint32(c) * 4
	lba, off := t.entryLBA(t.ActiveFAT, byteOffset)
	sector, err := t.Cache.Get(lba)
	if err != nil {
		return 0, fatErrors.Io.WrapError(err)
	}
	defer t.Cache.Put(lba)
	raw := uint32(sector[off]) | uint32(sector[off+1])<<8 | uint32(sector[off+2])<<16 | uint32(sector[off+3])<<24
	return raw & 0x0FFFFFFF, nil
}

func write32(t *Table, c gofat.Cluster, v uint32) fatErrors.DriverError {
	byteOffset := uint32(c) * 4
	lba, off := t.entryLBA(t.ActiveFAT, byteOffset)
	sector, err := t.Cache.GetWritable(lba)
	if err != nil {
		return fatErrors.Io.WrapError(err)
	}
	defer t.Cache.Put(lba)

	// The top 4 bits of the 32-bit on-disk word are reserved and must be
	// preserved across writes.
	reservedTop := (uint32(sector[off+3]) << 24) & 0xF0000000
	v &= 0x0FFFFFFF
	packed := v | reservedTop

	sector[off] = byte(packed & 0xFF)
	sector[off+1] = byte((packed >> 8) & 0xFF)
	sector[off+2] = byte((packed >> 16) & 0xFF)
	sector[off+3] = byte((packed >> 24) & 0xFF)
	return nil
}
