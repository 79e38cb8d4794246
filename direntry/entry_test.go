package direntry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
)

func TestClassifySlot(t *testing.T) {
	free := make([]byte, EntrySize)
	assert.Equal(t, SlotFree, ClassifySlot(free))

	deleted := make([]byte, EntrySize)
	deleted[0] = 0xE5
	assert.Equal(t, SlotDeleted, ClassifySlot(deleted))

	longName := make([]byte, EntrySize)
	longName[0] = 0x41
	longName[11] = byte(gofat.AttrLongName)
	assert.Equal(t, SlotLongName, ClassifySlot(longName))

	volumeLabel := make([]byte, EntrySize)
	volumeLabel[0] = 'A'
	volumeLabel[11] = byte(gofat.AttrVolumeID)
	assert.Equal(t, SlotVolumeLabel, ClassifySlot(volumeLabel))

	short := make([]byte, EntrySize)
	short[0] = 'A'
	assert.Equal(t, SlotShortEntry, ClassifySlot(short))
}

func TestShortEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := ShortEntry{
		Attr:             gofat.AttrArchive,
		CaseFlags:        0,
		CreateTenths:     37,
		CreateTime:       0x1234,
		CreateDate:       0x5678,
		LastAccessDate:   0x5678,
		WriteTime:        0x1234,
		WriteDate:        0x5678,
		FirstClusterHigh: 0x0001,
		FirstClusterLow:  0xBEEF,
		FileSize:         0xDEADBEEF,
	}
	copy(e.Name[:], "FILE    TXT")

	raw := e.Encode()
	require.Len(t, raw, EntrySize)

	decoded := DecodeShortEntry(raw)
	assert.Equal(t, e, decoded)
	assert.Equal(t, gofat.Cluster(0x0001BEEF), decoded.StartCluster())
}

func TestShortEntryKanjiShim(t *testing.T) {
	e := ShortEntry{}
	e.Name[0] = 0xE5
	raw := e.Encode()
	assert.Equal(t, byte(0x05), raw[0])

	decoded := DecodeShortEntry(raw)
	assert.Equal(t, byte(0xE5), decoded.Name[0])
}

func TestShortEntrySetStartCluster(t *testing.T) {
	var e ShortEntry
	e.SetStartCluster(gofat.Cluster(0x00123456))
	assert.Equal(t, uint16(0x0012), e.FirstClusterHigh)
	assert.Equal(t, uint16(0x3456), e.FirstClusterLow)
	assert.Equal(t, gofat.Cluster(0x00123456), e.StartCluster())
}

func TestLongNameSlotEncodeDecodeRoundTrip(t *testing.T) {
	units := ToUTF16("HELLO.TXT")
	fragments := EncodeNameFragments(units)
	require.Len(t, fragments, 1)

	s := LongNameSlot{Seq: 1, IsLast: true, Checksum: 0xAB, Chars: fragments[0]}
	raw := s.Encode()
	require.Len(t, raw, EntrySize)
	assert.Equal(t, byte(gofat.AttrLongName), raw[11])

	decoded := DecodeLongNameSlot(raw)
	assert.Equal(t, s.Seq, decoded.Seq)
	assert.Equal(t, s.IsLast, decoded.IsLast)
	assert.Equal(t, s.Checksum, decoded.Checksum)
	assert.Equal(t, s.Chars, decoded.Chars)
}

func TestEncodeNameFragmentsMultiSlot(t *testing.T) {
	name := "A VERY LONG FILE NAME THAT NEEDS MULTIPLE LFN SLOTS.TXT"
	units := ToUTF16(name)
	fragments := EncodeNameFragments(units)

	expected := (len(units) + 12) / 13
	require.Len(t, fragments, expected)

	var reassembled []uint16
	for _, frag := range fragments {
		reassembled = append(reassembled, frag[:]...)
	}
	assert.Equal(t, name, FromUTF16(reassembled))
}

func TestEncodeNameFragmentsEmptyNameStillProducesOneSlot(t *testing.T) {
	fragments := EncodeNameFragments(nil)
	require.Len(t, fragments, 1)
	assert.Equal(t, uint16(0x0000), fragments[0][0])
}
