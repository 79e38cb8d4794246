package direntry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegalLong(t *testing.T) {
	codec := NameCodec{}
	assert.True(t, codec.LegalLong("hello.txt"))
	assert.False(t, codec.LegalLong(""))
	assert.False(t, codec.LegalLong("."))
	assert.False(t, codec.LegalLong(".."))
	assert.False(t, codec.LegalLong("bad/name"))
	assert.False(t, codec.LegalLong("bad*name"))
	assert.False(t, codec.LegalLong("control\x01char"))
}

func TestLegalShortRejectsReservedDeviceNames(t *testing.T) {
	codec := NameCodec{}
	assert.False(t, codec.LegalShort(packShort("CON", "")))
	assert.False(t, codec.LegalShort(packShort("COM1", "TXT")))
	assert.True(t, codec.LegalShort(packShort("README", "TXT")))
}

func TestLongToShortPlainNameNoCollision(t *testing.T) {
	codec := NameCodec{}
	short, err := codec.LongToShort("readme.txt", func([11]byte) bool { return false })
	require.Nil(t, err)
	assert.Equal(t, "README  TXT", string(short[:]))
}

func TestLongToShortNeedsLFNWhenBasisLosesInformation(t *testing.T) {
	codec := NameCodec{}
	short, err := codec.LongToShort("my file.txt", func([11]byte) bool { return false })
	require.Nil(t, err)
	// The basis strips the embedded space, so it can't round-trip back to
	// the original name and must uniquify with a ~1 tail rather than reuse
	// the plain basis.
	assert.Equal(t, "MYFILE~1TXT", string(short[:]))
}

func TestLongToShortUniquifiesOnCollision(t *testing.T) {
	codec := NameCodec{}
	taken := map[string]bool{
		string(packShort("README", "TXT")[:]):   true,
		string(packShort("README~1", "TXT")[:]): true,
	}
	short, err := codec.LongToShort("readme.txt", func(raw [11]byte) bool { return taken[string(raw[:])] })
	require.Nil(t, err)
	assert.Equal(t, "README~2TXT", string(short[:]))
}

func TestLongToShortTruncatesLongBase(t *testing.T) {
	codec := NameCodec{}
	short, err := codec.LongToShort("averylongfilename.txt", func([11]byte) bool { return false })
	require.Nil(t, err)
	assert.Equal(t, "AVERYL~1TXT", string(short[:]))
}

func TestUTF16RoundTrip(t *testing.T) {
	name := "héllo wörld"
	units := ToUTF16(name)
	assert.Equal(t, name, FromUTF16(units))
}

func TestFromUTF16StopsAtTerminator(t *testing.T) {
	units := append(ToUTF16("abc"), 0x0000, 'X')
	assert.Equal(t, "abc", FromUTF16(units))
}
