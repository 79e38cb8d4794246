// Package direntry implements the 32-byte on-disk directory-entry codec —
// ShortEntry and LongNameSlot (VFAT LFN fragment) encode/decode, the
// short-name checksum, and DOS packed timestamps — plus NameCodec, which
// converts between long and short names and enforces FAT naming legality.
package direntry

import (
	"encoding/binary"

	"github.com/dargueta/gofat"
)

// EntrySize is the fixed size of a directory entry slot on disk.
const EntrySize = 32

// SlotKind discriminates what a raw 32-byte slot currently holds, per
// spec.md section 3.
type SlotKind uint8

const (
	SlotFree SlotKind = iota
	SlotDeleted
	SlotVolumeLabel
	SlotLongName
	SlotShortEntry
)

// ClassifySlot inspects the first byte and attribute byte of a raw slot to
// determine its kind, without fully decoding it.
func ClassifySlot(raw []byte) SlotKind {
	switch raw[0] {
	case 0x00:
		return SlotFree
	case 0xE5:
		return SlotDeleted
	}

	attr := gofat.DirAttr(raw[11])
	switch {
	case attr.IsLongNameSlot():
		return SlotLongName
	case attr.IsVolumeLabel():
		return SlotVolumeLabel
	default:
		return SlotShortEntry
	}
}

// ShortEntry is the decoded form of an 8.3 file/directory directory entry.
type ShortEntry struct {
	// Name is the raw 11-byte OEM short name, space-padded, upper-cased.
	// Byte 0 == 0x05 on disk (the "KANJI shim" for a real leading 0xE5) has
	// already been un-shimmed to 0xE5 by Decode.
	Name [11]byte

	Attr      gofat.DirAttr
	CaseFlags uint8

	CreateTenths uint8
	CreateTime   uint16
	CreateDate   uint16

	LastAccessDate uint16

	WriteTime uint16
	WriteDate uint16

	FirstClusterHigh uint16
	FirstClusterLow  uint16

	FileSize uint32
}

func (e *ShortEntry) StartCluster() gofat.Cluster {
	return gofat.Cluster(uint32(e.FirstClusterHigh)<<16 | uint32(e.FirstClusterLow))
}

func (e *ShortEntry) SetStartCluster(c gofat.Cluster) {
	e.FirstClusterHigh = uint16(uint32(c) >> 16)
	e.FirstClusterLow = uint16(uint32(c) & 0xFFFF)
}

// DecodeShortEntry parses a 32-byte slot already known (by ClassifySlot) to
// be a ShortEntry.
func DecodeShortEntry(raw []byte) ShortEntry {
	var e ShortEntry
	copy(e.Name[:], raw[0:11])
	if e.Name[0] == 0x05 {
		e.Name[0] = 0xE5
	}

	e.Attr = gofat.DirAttr(raw[11])
	e.CaseFlags = raw[12]
	e.CreateTenths = raw[13]
	e.CreateTime = binary.LittleEndian.Uint16(raw[14:16])
	e.CreateDate = binary.LittleEndian.Uint16(raw[16:18])
	e.LastAccessDate = binary.LittleEndian.Uint16(raw[18:20])
	e.FirstClusterHigh = binary.LittleEndian.Uint16(raw[20:22])
	e.WriteTime = binary.LittleEndian.Uint16(raw[22:24])
	e.WriteDate = binary.LittleEndian.Uint16(raw[24:26])
	e.FirstClusterLow = binary.LittleEndian.Uint16(raw[26:28])
	e.FileSize = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

// Encode serializes e into a fresh 32-byte slot. The in-memory 0xE5 leading
// byte is re-shimmed to 0x05 on disk, per the KANJI convention.
func (e *ShortEntry) Encode() []byte {
	raw := make([]byte, EntrySize)
	copy(raw[0:11], e.Name[:])
	if raw[0] == 0xE5 {
		raw[0] = 0x05
	}

	raw[11] = byte(e.Attr)
	raw[12] = e.CaseFlags
	raw[13] = e.CreateTenths
	binary.LittleEndian.PutUint16(raw[14:16], e.CreateTime)
	binary.LittleEndian.PutUint16(raw[16:18], e.CreateDate)
	binary.LittleEndian.PutUint16(raw[18:20], e.LastAccessDate)
	binary.LittleEndian.PutUint16(raw[20:22], e.FirstClusterHigh)
	binary.LittleEndian.PutUint16(raw[22:24], e.WriteTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.WriteDate)
	binary.LittleEndian.PutUint16(raw[26:28], e.FirstClusterLow)
	binary.LittleEndian.PutUint32(raw[28:32], e.FileSize)
	return raw
}

// LongNameSlot is one fragment of a VFAT long-filename chain.
type LongNameSlot struct {
	// Seq is 1..20; the chain's final (highest-numbered, written first on
	// disk) slot has IsLast set.
	Seq      uint8
	IsLast   bool
	Checksum uint8
	// Chars holds up to 13 UTF-16LE code units of this fragment, padded
	// with U+0000 then U+FFFF once the name ends.
	Chars [13]uint16
}

const longNameSeqMask = 0x1F
const longNameLastBit = 0x40

// DecodeLongNameSlot parses a 32-byte slot already known to be a
// LongNameSlot.
func DecodeLongNameSlot(raw []byte) LongNameSlot {
	var s LongNameSlot
	s.Seq = raw[0] & longNameSeqMask
	s.IsLast = raw[0]&longNameLastBit != 0
	s.Checksum = raw[13]

	idx := 0
	for _, off := range []int{1, 3, 5, 7, 9} {
		s.Chars[idx] = binary.LittleEndian.Uint16(raw[off : off+2])
		idx++
	}
	for _, off := range []int{14, 16, 18, 20, 22, 24} {
		s.Chars[idx] = binary.LittleEndian.Uint16(raw[off : off+2])
		idx++
	}
	for _, off := range []int{28, 30} {
		s.Chars[idx] = binary.LittleEndian.Uint16(raw[off : off+2])
		idx++
	}
	return s
}

// Encode serializes s into a fresh 32-byte slot.
func (s *LongNameSlot) Encode() []byte {
	raw := make([]byte, EntrySize)
	seqByte := s.Seq & longNameSeqMask
	if s.IsLast {
		seqByte |= longNameLastBit
	}
	raw[0] = seqByte
	raw[11] = byte(gofat.AttrLongName)
	raw[12] = 0
	raw[13] = s.Checksum
	raw[26] = 0
	raw[27] = 0

	idx := 0
	for _, off := range []int{1, 3, 5, 7, 9} {
		binary.LittleEndian.PutUint16(raw[off:off+2], s.Chars[idx])
		idx++
	}
	for _, off := range []int{14, 16, 18, 20, 22, 24} {
		binary.LittleEndian.PutUint16(raw[off:off+2], s.Chars[idx])
		idx++
	}
	for _, off := range []int{28, 30} {
		binary.LittleEndian.PutUint16(raw[off:off+2], s.Chars[idx])
		idx++
	}
	return raw
}

// EncodeNameFragments splits a UTF-16 name into 13-unit fragments, padding
// the final fragment with U+0000 then U+FFFF, for a chain of
// ceil(len(units)/13) slots.
func EncodeNameFragments(units []uint16) [][13]uint16 {
	n := (len(units) + 12) / 13
	if n == 0 {
		n = 1
	}
	out := make([][13]uint16, n)
	for i := 0; i < n; i++ {
		for j := 0; j < 13; j++ {
			pos := i*13 + j
			switch {
			case pos < len(units):
				out[i][j] = units[pos]
			case pos == len(units):
				out[i][j] = 0x0000
			default:
				out[i][j] = 0xFFFF
			}
		}
	}
	return out
}
