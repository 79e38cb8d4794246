package mkfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat"
)

func TestGetPredefinedGeometryFindsKnownSlug(t *testing.T) {
	g, err := GetPredefinedGeometry("1440k")
	require.Nil(t, err)
	assert.Equal(t, "1440k", g.Slug)
	assert.Equal(t, uint16(512), g.BytesPerSector)
}

func TestGetPredefinedGeometryRejectsUnknownSlug(t *testing.T) {
	_, err := GetPredefinedGeometry("not-a-real-slug")
	assert.NotNil(t, err)
}

func TestPredefinedGeometrySlugsIncludesStandardFloppies(t *testing.T) {
	slugs := PredefinedGeometrySlugs()
	assert.Contains(t, slugs, "1440k")
	assert.Contains(t, slugs, "720k")
}

func TestFloppyGeometriesClassifyAsFAT12(t *testing.T) {
	for _, slug := range []string{"360k", "720k", "1200k", "1440k", "2880k"} {
		g, err := GetPredefinedGeometry(slug)
		require.Nil(t, err)
		assert.Equal(t, gofat.Fat12, g.fatType(), "slug %q", slug)
	}
}

func TestRootDirSectorsMatchesEntryCount(t *testing.T) {
	g, err := GetPredefinedGeometry("1440k")
	require.Nil(t, err)

	expectedBytes := uint32(g.RootEntries) * 32
	expectedSectors := (expectedBytes + uint32(g.BytesPerSector) - 1) / uint32(g.BytesPerSector)
	assert.Equal(t, expectedSectors, g.rootDirSectors())
}

func TestDataSectorsAccountsForReservedFATsAndRoot(t *testing.T) {
	g, err := GetPredefinedGeometry("1440k")
	require.Nil(t, err)

	used := uint32(g.ReservedSectors) + uint32(g.NumFATs)*g.FATSizeSectors + g.rootDirSectors()
	assert.Equal(t, g.TotalSectors-used, g.dataSectors())
}
